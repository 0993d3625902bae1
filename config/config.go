package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

// GameConfig tunes the match engine. Zero timeouts disable idle forfeits.
type GameConfig struct {
	RoomCodeLength   int           `mapstructure:"room_code_length"`
	PasswordCost     int           `mapstructure:"password_cost"`
	PlacementTimeout time.Duration `mapstructure:"placement_timeout"`
	TurnTimeout      time.Duration `mapstructure:"turn_timeout"`
	TimerTick        time.Duration `mapstructure:"timer_tick"`
}

// DatabaseConfig selects where finished matches are archived:
// "memory", "gorm" or "postgres".
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// RedisConfig enables the directory mirror when URL is set.
type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	Key     string        `mapstructure:"key"`
	Channel string        `mapstructure:"channel"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MonitorConfig serves metrics on Address, or on the game listener when empty.
type MonitorConfig struct {
	Namespace string `mapstructure:"namespace"`
	Address   string `mapstructure:"address"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", "")
	v.SetDefault("server.ping_interval", 25*time.Second)
	v.SetDefault("server.pong_wait", 60*time.Second)
	v.SetDefault("server.write_wait", 10*time.Second)
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.max_message_bytes", 8192)

	v.SetDefault("game.room_code_length", 6)
	v.SetDefault("game.password_cost", 10)
	v.SetDefault("game.placement_timeout", 0)
	v.SetDefault("game.turn_timeout", 0)
	v.SetDefault("game.timer_tick", 100*time.Millisecond)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "battleship")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key", "battleship:rooms:public")
	v.SetDefault("redis.channel", "battleship:rooms")
	v.SetDefault("redis.ttl", 0)

	v.SetDefault("monitor.namespace", "battleship")
	v.SetDefault("monitor.address", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path when present. Every key can be
// overridden from the environment, e.g. BATTLESHIP_SERVER_HTTP_ADDRESS.
func LoadConfig(path string) (config *Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BATTLESHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	err = v.Unmarshal(&config)
	return
}

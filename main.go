package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfunc/battleserver/broadcast"
	"github.com/wfunc/battleserver/config"
	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/persistence"
	gameserver_rpc "github.com/wfunc/battleserver/rpc"
	"github.com/wfunc/battleserver/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "battleserver",
		Short:        "Two-player battleship match server",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newAdminCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", ".", "Directory containing config.yaml")
	return cmd
}

func serve(configPath string) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	logger.Log.Infof("Match archive using %q driver.", cfg.Database.Driver)

	opts := server.Options{Database: db}
	if cfg.Redis.URL != "" {
		mirror, err := broadcast.NewRedisMirror(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer mirror.Close()
		opts.Mirror = mirror
		logger.Log.Infof("Mirroring room directory to redis key %s", cfg.Redis.Key)
	}

	// Initialize Game Server
	gameServer, err := server.NewGameServer(cfg, opts)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- gameServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-errChan:
		logger.Log.Errorf("Server stopped: %v", err)
	case sig := <-sigChan:
		logger.Log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if shutdownErr := gameServer.Shutdown(ctx); shutdownErr != nil {
		logger.Log.Warnf("Shutdown: %v", shutdownErr)
	}
	return err
}

func newAdminCmd() *cobra.Command {
	var addr string

	call := func(method string, args, reply interface{}) error {
		client, err := rpc.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		defer client.Close()
		if err := client.Call(gameserver_rpc.ServiceName+"."+method, args, reply); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reply)
	}

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Query a running server over its RPC address",
	}
	cmd.PersistentFlags().StringVar(&addr, "rpc", "localhost:9090", "Server RPC address")

	var publicOnly bool
	rooms := &cobra.Command{
		Use:   "rooms",
		Short: "List live rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("ListRooms", &gameserver_rpc.ListRoomsArgs{PublicOnly: publicOnly}, &gameserver_rpc.ListRoomsReply{})
		},
	}
	rooms.Flags().BoolVar(&publicOnly, "public", false, "Only public rooms")

	stats := &cobra.Command{
		Use:   "stats <name>",
		Short: "Show a player's archived record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("PlayerStats", &gameserver_rpc.PlayerStatsArgs{Name: args[0]}, &gameserver_rpc.PlayerStatsReply{})
		},
	}

	var limit int
	matches := &cobra.Command{
		Use:   "matches",
		Short: "List recently finished matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call("RecentMatches", &gameserver_rpc.RecentMatchesArgs{Limit: limit}, &gameserver_rpc.RecentMatchesReply{})
		},
	}
	matches.Flags().IntVar(&limit, "limit", 20, "Maximum matches to show")

	cmd.AddCommand(rooms, stats, matches)
	return cmd
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/broadcast"
	"github.com/wfunc/battleserver/config"
	"github.com/wfunc/battleserver/gameerr"
	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/monitor"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/persistence"
	"github.com/wfunc/battleserver/random"
	"github.com/wfunc/battleserver/room"
	"github.com/wfunc/battleserver/services"
	"github.com/wfunc/battleserver/session"
	"github.com/wfunc/battleserver/timer"
	gameserver_rpc "github.com/wfunc/battleserver/rpc"
)

const (
	MaxPlayerNameLength = 32
	archiveBuffer       = 256
)

// Options carries the collaborators built outside the server.
type Options struct {
	// Database archives finished matches. Nil keeps them in memory.
	Database persistence.Database
	// Mirror receives every directory snapshot. Nil disables mirroring.
	Mirror broadcast.Mirror
	// Random drives room codes and the first-shooter coin. Nil uses crypto/rand.
	Random random.Random
}

type GameServer struct {
	cfg            *config.Config
	router         *mux.Router
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	directory      *broadcast.Directory
	monitor        *monitor.Monitor
	archive        *persistence.Archive
	timers         *timer.TimerManager
	rpcServer      *gameserver_rpc.Server
	httpServer     *http.Server
	metricsServer  *http.Server
	connections    sync.WaitGroup
	shutdownOnce   sync.Once
	shutdownChan   chan struct{}
}

func NewGameServer(cfg *config.Config, opts Options) (*GameServer, error) {
	if opts.Database == nil {
		opts.Database = persistence.NewMemory()
	}

	s := &GameServer{
		cfg:            cfg,
		sessionManager: session.NewManager(),
		monitor:        monitor.NewMonitor(cfg.Monitor.Namespace),
		archive:        persistence.NewArchive(opts.Database, archiveBuffer),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	roomOpts := room.Options{
		Random:           opts.Random,
		CodeLength:       cfg.Game.RoomCodeLength,
		PasswordCost:     cfg.Game.PasswordCost,
		PlacementTimeout: cfg.Game.PlacementTimeout,
		TurnTimeout:      cfg.Game.TurnTimeout,
		Recorder:         s.archive,
		Observer:         s.monitor,
	}
	if cfg.Game.PlacementTimeout > 0 || cfg.Game.TurnTimeout > 0 {
		s.timers = timer.NewTimerManager(cfg.Game.TimerTick)
		roomOpts.Scheduler = s.timers
	}
	s.roomManager = room.NewRoomManager(roomOpts)

	// 初始化广播器
	s.directory = broadcast.NewDirectory(s.roomManager, s.sessionManager, opts.Mirror)
	s.roomManager.SetNotifier(s.directory)

	// 初始化RPC服务器
	if cfg.Server.RPCAddress != "" {
		admin := gameserver_rpc.NewAdminService(s.roomManager, services.NewStatsService(opts.Database))
		rpcServer, err := gameserver_rpc.NewServer(cfg.Server.RPCAddress, admin)
		if err != nil {
			s.archive.Close()
			return nil, err
		}
		s.rpcServer = rpcServer
	}

	s.router = mux.NewRouter()
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if cfg.Monitor.Address == "" {
		s.router.Handle("/metrics", s.monitor.Handler()).Methods(http.MethodGet)
	} else {
		s.metricsServer = s.monitor.NewServer(cfg.Monitor.Address)
	}

	s.directory.Start()
	return s, nil
}

// Router returns the HTTP handler serving /ws, /healthz and, unless metrics
// have their own listener, /metrics.
func (s *GameServer) Router() http.Handler {
	return s.router
}

func (s *GameServer) Rooms() *room.Manager {
	return s.roomManager
}

func (s *GameServer) Monitor() *monitor.Monitor {
	return s.monitor
}

// Start serves until Shutdown is called.
func (s *GameServer) Start() error {
	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	if s.metricsServer != nil {
		go func() {
			logger.Log.Infof("Metrics listening on %s", s.metricsServer.Addr)
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.HTTPAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, drops every session (which forfeits
// their matches), then flushes the archive.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
		if s.metricsServer != nil {
			_ = s.metricsServer.Shutdown(ctx)
		}
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}

		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
		waited := make(chan struct{})
		go func() {
			s.connections.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			logger.Log.Warn("Shutdown timed out waiting for connections")
		}

		s.roomManager.Close()
		s.directory.Stop()
		if s.timers != nil {
			s.timers.Stop()
		}
		s.archive.Close()
	})
	return err
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"rooms":    s.roomManager.Count(),
		"sessions": s.sessionManager.Count(),
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.shutdownChan:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.connections.Add(1)
	defer s.connections.Done()
	s.handleConnection(conn, r.URL.Query().Get("name"))
}

func (s *GameServer) connectionOptions() network.Options {
	return network.Options{
		PingInterval:    s.cfg.Server.PingInterval,
		PongWait:        s.cfg.Server.PongWait,
		WriteWait:       s.cfg.Server.WriteWait,
		SendBuffer:      s.cfg.Server.SendBuffer,
		MaxMessageBytes: s.cfg.Server.MaxMessageBytes,
	}
}

func (s *GameServer) handleConnection(conn *websocket.Conn, name string) {
	wsConn := network.NewWSConnection(conn, s.connectionOptions())
	id := uuid.New().String()
	name, ok := cleanName(name)
	if !ok {
		name = session.DefaultName(id)
	}
	sess := session.NewSession(id, name, wsConn)
	s.sessionManager.Add(sess)
	s.monitor.IncOnlinePlayers()
	s.directory.Welcome(sess)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		// a dropped connection leaves its room exactly like leaveRoom
		s.roomManager.LeaveRoom(sess)
		s.sessionManager.Remove(sess.GetID())
		s.monitor.DecOnlinePlayers()
		wsConn.Close()
	}()

	for {
		packet, err := wsConn.ReadPacket()
		if errors.Is(err, network.ErrShortFrame) || errors.Is(err, network.ErrLengthMismatch) {
			s.replyError(sess, 0, gameerr.ErrMalformedMessage.WithDetail("%v", err))
			continue
		}
		if err != nil {
			return
		}

		start := time.Now()
		s.monitor.IncMessagesReceived(network.MsgName(packet.MsgID))
		if err := s.handlePacket(sess, packet); err != nil {
			s.replyError(sess, packet.MsgID, err)
		}
		s.monitor.ObserveMessageLatency(time.Since(start))
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) error {
	sess.Touch()

	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return nil
	case network.MsgTypeRegister:
		return s.handleRegister(sess, packet)
	case network.MsgTypeCreateRoom:
		return s.handleCreateRoom(sess, packet)
	case network.MsgTypeJoinRoom:
		return s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		s.roomManager.LeaveRoom(sess)
		return nil
	case network.MsgTypeSubmitFleet:
		return s.handleSubmitFleet(sess, packet)
	case network.MsgTypeSubmitShot:
		return s.handleSubmitShot(sess, packet)
	default:
		return gameerr.ErrUnknownMessage.WithDetail("message type %d", packet.MsgID)
	}
}

func (s *GameServer) handleRegister(sess *session.Session, packet *network.Packet) error {
	var req network.RegisterRequest
	if err := decode(packet, &req); err != nil {
		return err
	}
	name, ok := cleanName(req.Name)
	if !ok {
		return gameerr.ErrMalformedMessage.WithDetail("name must be 1-%d characters", MaxPlayerNameLength)
	}
	sess.SetName(name)
	return sess.SendJSON(network.MsgTypeRegistered, network.Registered{ID: sess.GetID(), Name: name})
}

func (s *GameServer) handleCreateRoom(sess *session.Session, packet *network.Packet) error {
	var req network.CreateRoomRequest
	if err := decode(packet, &req); err != nil {
		return err
	}
	_, err := s.roomManager.CreateRoom(sess, req.Name, req.Private, req.Password)
	return err
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) error {
	var req network.JoinRoomRequest
	if err := decode(packet, &req); err != nil {
		return err
	}
	_, err := s.roomManager.JoinRoom(sess, req.RoomID, req.Password)
	return err
}

func (s *GameServer) handleSubmitFleet(sess *session.Session, packet *network.Packet) error {
	var req network.SubmitFleetRequest
	if err := decode(packet, &req); err != nil {
		return err
	}
	fleet, err := fleetFrom(req.Ships)
	if err != nil {
		return err
	}
	return s.roomManager.SubmitFleet(sess, fleet)
}

func (s *GameServer) handleSubmitShot(sess *session.Session, packet *network.Packet) error {
	var req network.SubmitShotRequest
	if err := decode(packet, &req); err != nil {
		return err
	}
	return s.roomManager.SubmitShot(sess, board.Coord{X: req.X, Y: req.Y})
}

// replyError reports err to the sender only.
func (s *GameServer) replyError(sess *session.Session, msgID uint16, err error) {
	msg := network.ErrorMessage{Code: "InternalError", Class: "internal", Message: "internal error"}
	if ge, ok := gameerr.As(err); ok {
		msg = network.ErrorMessage{Code: ge.Code, Class: string(ge.Class), Message: ge.Error()}
		if ge.Class == gameerr.ClassRuleViolation {
			logger.Log.Warnw("rule violation", "session", sess.GetID(), "msg", network.MsgName(msgID), "code", ge.Code, "error", ge)
			s.monitor.IncRuleViolation(ge.Code)
		} else {
			logger.Log.Debugw("request rejected", "session", sess.GetID(), "msg", network.MsgName(msgID), "code", ge.Code, "error", ge)
		}
	} else {
		logger.Log.Errorw("request failed", "session", sess.GetID(), "msg", network.MsgName(msgID), "error", err)
	}

	if err := sess.SendJSON(network.MsgTypeError, msg); err != nil {
		logger.Log.Debugw("dropped error reply", "session", sess.GetID(), "error", err)
	}
}

func decode(packet *network.Packet, v interface{}) error {
	if err := packet.Unmarshal(v); err != nil {
		return gameerr.ErrMalformedMessage.WithDetail("%s: %v", network.MsgName(packet.MsgID), err)
	}
	return nil
}

func fleetFrom(ships []network.ShipPlacement) (board.Fleet, error) {
	if len(ships) != len(board.FleetSizes) {
		return nil, gameerr.InvalidFleet("expected %d ships, got %d", len(board.FleetSizes), len(ships))
	}
	fleet := make(board.Fleet, 0, len(ships))
	for _, p := range ships {
		ship, err := board.NewShip(
			board.Kind(strings.ToLower(p.Kind)),
			p.Size,
			board.Coord{X: p.X, Y: p.Y},
			board.Orientation(strings.ToLower(p.Orientation)),
		)
		if err != nil {
			return nil, err
		}
		fleet = append(fleet, ship)
	}
	return fleet, nil
}

func cleanName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return "", false
	}
	return name, true
}

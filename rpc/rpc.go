package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/models"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/room"
	"github.com/wfunc/battleserver/services"
)

// ServiceName is the name AdminService is registered under.
const ServiceName = "Admin"

const callTimeout = 5 * time.Second

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	rpc      *rpc.Server
	address  string
}

// NewServer listens on addr and registers the admin service. It uses its own
// rpc.Server so several can live in one process.
func NewServer(addr string, admin *AdminService) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, admin); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		rpc:      srv,
		address:  listener.Addr().String(),
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomLister is the part of the room registry the admin service reads.
type RoomLister interface {
	Rooms() []*room.Summary
}

// AdminService exposes read-only operator queries.
// Methods follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
type AdminService struct {
	rooms RoomLister
	stats *services.StatsService
}

func NewAdminService(rooms RoomLister, stats *services.StatsService) *AdminService {
	return &AdminService{rooms: rooms, stats: stats}
}

type ListRoomsArgs struct {
	PublicOnly bool
}

type RoomEntry struct {
	Room      network.RoomInfo
	CreatedAt time.Time
}

type ListRoomsReply struct {
	Rooms []RoomEntry
}

// ListRooms returns every live room in creation order.
func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	for _, s := range a.rooms.Rooms() {
		if args.PublicOnly && s.Private {
			continue
		}
		reply.Rooms = append(reply.Rooms, RoomEntry{Room: s.Info(), CreatedAt: s.CreatedAt})
	}
	return nil
}

type PlayerStatsArgs struct {
	Name string
}

type PlayerStatsReply struct {
	Report services.PlayerReport
}

func (a *AdminService) PlayerStats(args *PlayerStatsArgs, reply *PlayerStatsReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	report, err := a.stats.PlayerReport(ctx, args.Name)
	if err != nil {
		return err
	}
	reply.Report = *report
	return nil
}

type RecentMatchesArgs struct {
	Limit int
}

type RecentMatchesReply struct {
	Matches []models.MatchRecord
}

// RecentMatches returns archived matches, newest first.
func (a *AdminService) RecentMatches(args *RecentMatchesArgs, reply *RecentMatchesReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	matches, err := a.stats.RecentMatches(ctx, args.Limit)
	if err != nil {
		return err
	}
	reply.Matches = matches
	return nil
}

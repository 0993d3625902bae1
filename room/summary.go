package room

import (
	"time"

	"github.com/wfunc/battleserver/network"
)

// PhaseWaiting is the phase of a room that has no match yet.
const PhaseWaiting = "waiting"

// Summary is an immutable snapshot of a room, safe to read from any goroutine.
type Summary struct {
	ID        string
	Name      string
	Private   bool
	Phase     string
	Players   []network.PlayerInfo
	CreatedAt time.Time
	seq       uint64
}

// Joinable reports whether the room belongs in the public directory.
func (s *Summary) Joinable() bool {
	return !s.Private && len(s.Players) < 2 && s.Phase == PhaseWaiting
}

func (s *Summary) Full() bool {
	return len(s.Players) >= 2 || s.Phase != PhaseWaiting
}

func (s *Summary) Info() network.RoomInfo {
	players := s.Players
	if players == nil {
		players = []network.PlayerInfo{}
	}
	return network.RoomInfo{
		ID:      s.ID,
		Name:    s.Name,
		Private: s.Private,
		Phase:   s.Phase,
		Players: players,
	}
}

func (s *Summary) Listing() network.RoomListing {
	return network.RoomListing{ID: s.ID, Name: s.Name, Players: len(s.Players)}
}

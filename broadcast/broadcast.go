// broadcast/broadcast.go
package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wfunc/battleserver/logger"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/room"
	"github.com/wfunc/battleserver/session"
)

// Lister yields the rooms that belong in the public directory.
type Lister interface {
	ListPublicJoinable() []*room.Summary
}

// Mirror copies each directory snapshot to an external store.
type Mirror interface {
	Publish(ctx context.Context, payload []byte) error
}

// Directory pushes the public room list to every connected session. All
// snapshots are built and queued by one goroutine, so each session sees them
// in the order they were taken. Change notifications coalesce: a burst of
// RoomsChanged calls yields one fresh snapshot.
type Directory struct {
	lister   Lister
	sessions *session.Manager
	mirror   Mirror
	dirty    chan struct{}
	welcome  chan *session.Session
	stop     chan struct{}
	done     chan struct{}
}

func NewDirectory(lister Lister, sessions *session.Manager, mirror Mirror) *Directory {
	return &Directory{
		lister:   lister,
		sessions: sessions,
		mirror:   mirror,
		dirty:    make(chan struct{}, 1),
		welcome:  make(chan *session.Session, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Directory) Start() {
	go d.run()
}

// Stop ends the publisher and waits for it to exit.
func (d *Directory) Stop() {
	close(d.stop)
	<-d.done
}

// RoomsChanged implements room.Notifier.
func (d *Directory) RoomsChanged() {
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

// Welcome sends the current snapshot to a newly connected session.
func (d *Directory) Welcome(s *session.Session) {
	select {
	case d.welcome <- s:
	case <-d.stop:
	}
}

// Snapshot builds the directory message from the registry.
func (d *Directory) Snapshot() network.RoomList {
	summaries := d.lister.ListPublicJoinable()
	list := network.RoomList{Rooms: make([]network.RoomListing, 0, len(summaries))}
	for _, s := range summaries {
		list.Rooms = append(list.Rooms, s.Listing())
	}
	return list
}

func (d *Directory) run() {
	defer close(d.done)
	for {
		select {
		case <-d.dirty:
			d.publish()
		case s := <-d.welcome:
			data, err := json.Marshal(d.Snapshot())
			if err != nil {
				logger.Log.Errorw("failed to encode room list", "error", err)
				continue
			}
			_ = s.Send(network.MsgTypeRoomList, data)
		case <-d.stop:
			return
		}
	}
}

func (d *Directory) publish() {
	data, err := json.Marshal(d.Snapshot())
	if err != nil {
		logger.Log.Errorw("failed to encode room list", "error", err)
		return
	}

	for _, s := range d.sessions.All() {
		if err := s.Send(network.MsgTypeRoomList, data); err != nil {
			logger.Log.Debugw("room list not delivered", "session", s.ID, "error", err)
		}
	}

	if d.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := d.mirror.Publish(ctx, data); err != nil {
			logger.Log.Warnw("room list mirror failed", "error", err)
		}
		cancel()
	}
}

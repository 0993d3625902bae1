package room

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wfunc/battleserver/board"
	"github.com/wfunc/battleserver/models"
	"github.com/wfunc/battleserver/network"
	"github.com/wfunc/battleserver/session"
)

// MockConnection records every packet queued on it.
type MockConnection struct {
	mu     sync.Mutex
	sent   []*network.Packet
	closed bool
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return network.ErrConnectionClosed
	}
	m.sent = append(m.sent, &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }
func (m *MockConnection) Done() <-chan struct{}                { return nil }

// IDs returns the message IDs received so far.
func (m *MockConnection) IDs() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint16, 0, len(m.sent))
	for _, p := range m.sent {
		ids = append(ids, p.MsgID)
	}
	return ids
}

// Last decodes the most recent packet with msgID into v.
func (m *MockConnection) Last(t *testing.T, msgID uint16, v interface{}) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].MsgID == msgID {
			require.NoError(t, json.Unmarshal(m.sent[i].Data, v))
			return
		}
	}
	t.Fatalf("no packet %d received", msgID)
}

// Only returns the raw payloads for msgID in arrival order.
func (m *MockConnection) Only(msgIDs ...uint16) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.sent {
		for _, id := range msgIDs {
			if p.MsgID == id {
				out = append(out, string(p.Data))
			}
		}
	}
	return out
}

func (m *MockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

func newTestSession(id string) (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	return session.NewSession(id, "name-"+id, conn), conn
}

// countingNotifier counts directory refresh requests.
type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) RoomsChanged() {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

func (n *countingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.count
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []*models.MatchRecord
}

func (r *memoryRecorder) RecordMatch(rec *models.MatchRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

func (r *memoryRecorder) Records() []*models.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.MatchRecord(nil), r.records...)
}

// manualScheduler holds callbacks until the test fires them.
type manualScheduler struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]func()
	delays map[int64]time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: map[int64]func(){}, delays: map[int64]time.Duration{}}
}

func (s *manualScheduler) AddTimer(delay, _ time.Duration, cb func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.tasks[s.nextID] = cb
	s.delays[s.nextID] = delay
	return s.nextID
}

func (s *manualScheduler) RemoveTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	delete(s.delays, id)
}

// Pending returns the delays of the armed timers.
func (s *manualScheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, d := range s.delays {
		out = append(out, d)
	}
	return out
}

// FireAll runs every armed callback.
func (s *manualScheduler) FireAll() {
	s.mu.Lock()
	var cbs []func()
	for id, cb := range s.tasks {
		cbs = append(cbs, cb)
		delete(s.tasks, id)
		delete(s.delays, id)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// testFleet lays carrier..submarine on rows 0..3 and the destroyer at (2,4)-(3,4).
func testFleet(t *testing.T) board.Fleet {
	t.Helper()
	specs := []struct {
		kind board.Kind
		x, y int
	}{
		{board.Carrier, 0, 0},
		{board.Battleship, 0, 1},
		{board.Cruiser, 0, 2},
		{board.Submarine, 0, 3},
		{board.Destroyer, 2, 4},
	}
	var f board.Fleet
	for _, s := range specs {
		ship, err := board.NewShip(s.kind, 0, board.Coord{X: s.x, Y: s.y}, board.Horizontal)
		require.NoError(t, err)
		f = append(f, ship)
	}
	return f
}

func fleetCells(t *testing.T) []board.Coord {
	var cells []board.Coord
	for _, s := range testFleet(t) {
		cells = append(cells, s.Cells...)
	}
	return cells
}

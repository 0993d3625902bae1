package network

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Inbound message IDs.
const (
	MsgTypeHeartbeat   = 1
	MsgTypeRegister    = 2
	MsgTypeCreateRoom  = 101
	MsgTypeJoinRoom    = 102
	MsgTypeLeaveRoom   = 103
	MsgTypeSubmitFleet = 201
	MsgTypeSubmitShot  = 202
)

// Outbound message IDs.
const (
	MsgTypeRegistered       = 3
	MsgTypeError            = 10
	MsgTypeRoomCreated      = 111
	MsgTypeRoomJoined       = 112
	MsgTypeRoomLeft         = 113
	MsgTypePlayerJoined     = 114
	MsgTypePlayerLeft       = 115
	MsgTypePlacementStarted = 301
	MsgTypeFleetAccepted    = 302
	MsgTypeBattleStarted    = 303
	MsgTypeShotResult       = 304
	MsgTypeTurnChanged      = 305
	MsgTypeGameOver         = 306
	MsgTypeRoomList         = 401
)

// HeaderSize is the msgID + length prefix of every frame.
const HeaderSize = 4

var (
	ErrShortFrame     = errors.New("frame shorter than its header")
	ErrLengthMismatch = errors.New("frame length does not match header")
	ErrFrameTooLarge  = errors.New("payload exceeds frame limit")
)

// MsgName returns a stable label for metrics and logs.
func MsgName(msgID uint16) string {
	switch msgID {
	case MsgTypeHeartbeat:
		return "heartbeat"
	case MsgTypeRegister:
		return "register"
	case MsgTypeCreateRoom:
		return "createRoom"
	case MsgTypeJoinRoom:
		return "joinRoom"
	case MsgTypeLeaveRoom:
		return "leaveRoom"
	case MsgTypeSubmitFleet:
		return "placeShips"
	case MsgTypeSubmitShot:
		return "fireShot"
	default:
		return "unknown"
	}
}

// Encode frames data as: 2 bytes message ID, 2 bytes length, payload.
func Encode(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint16(frame[0:2], msgID)
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(data)))
	copy(frame[HeaderSize:], data)
	return frame, nil
}

// Decode splits a frame produced by Encode.
func Decode(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, ErrShortFrame
	}
	msgID := binary.BigEndian.Uint16(frame[0:2])
	length := binary.BigEndian.Uint16(frame[2:4])
	if len(frame) != HeaderSize+int(length) {
		return nil, ErrLengthMismatch
	}
	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   frame[HeaderSize:],
	}, nil
}

// Marshal encodes v as JSON and frames it.
func Marshal(msgID uint16, v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message %d: %w", msgID, err)
	}
	return Encode(msgID, data)
}

// Unmarshal decodes a packet's JSON payload. An empty payload leaves v untouched.
func (p *Packet) Unmarshal(v interface{}) error {
	if len(p.Data) == 0 {
		return nil
	}
	return json.Unmarshal(p.Data, v)
}

// --- inbound payloads ---

type RegisterRequest struct {
	Name string `json:"name"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Private  bool   `json:"private"`
	Password string `json:"password,omitempty"`
}

type JoinRoomRequest struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password,omitempty"`
}

// ShipPlacement is one ship of a placeShips request. Kind may be empty; the
// server assigns kinds by size.
type ShipPlacement struct {
	Kind        string `json:"kind,omitempty"`
	Size        int    `json:"size"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Orientation string `json:"orientation"`
}

type SubmitFleetRequest struct {
	Ships []ShipPlacement `json:"ships"`
}

type SubmitShotRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// --- outbound payloads ---

type PlayerInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RoomInfo struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Private bool         `json:"isPrivate"`
	Phase   string       `json:"phase"`
	Players []PlayerInfo `json:"players"`
}

type Registered struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ErrorMessage struct {
	Code    string `json:"code"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

type RoomAck struct {
	RoomID string   `json:"roomId"`
	Room   RoomInfo `json:"room"`
}

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

type PlayerNotice struct {
	Player PlayerInfo `json:"player"`
}

type PlacementStarted struct {
	Room RoomInfo `json:"room"`
}

type FleetAccepted struct{}

type TurnNotice struct {
	CurrentTurn string `json:"currentTurn"`
}

type ShotResult struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Hit      bool   `json:"hit"`
	Sunk     bool   `json:"sunk"`
	ShipType string `json:"shipType,omitempty"`
	Player   string `json:"player"`
}

// GameOver names the winner by player id; Winner is empty when nobody won.
type GameOver struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"`
}

type RoomListing struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
}

type RoomList struct {
	Rooms []RoomListing `json:"rooms"`
}

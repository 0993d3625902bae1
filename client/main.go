package main

import (
	"bufio"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wfunc/battleserver/network"
)

const help = `commands:
  name <name>                 set display name
  create <name> [password]    create a room (private when a password is given)
  join <code> [password]      join a room
  leave                       leave the current room
  place                       submit the default fleet
  fire <x> <y>                fire at a cell
  quit`

func main() {
	var server, name string

	cmd := &cobra.Command{
		Use:          "battleclient",
		Short:        "Interactive client for the battleship server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(server, name)
		},
	}
	cmd.Flags().StringVar(&server, "server", "localhost:8080", "Server host:port")
	cmd.Flags().StringVar(&name, "name", "", "Display name")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeMu serializes writers; gorilla allows one at a time.
var writeMu sync.Mutex

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	frame, err := network.Marshal(msgID, v)
	if err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return c.WriteMessage(websocket.BinaryMessage, frame)
}

func run(server, name string) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: server, Path: "/ws"}
	if name != "" {
		u.RawQuery = url.Values{"name": {name}}.Encode()
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			log.Printf("<- %s (ID: %d): %s", outboundName(packet.MsgID), packet.MsgID, packet.Data)
		}
	}()

	// Heartbeat
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = send(c, network.MsgTypeHeartbeat, nil)
			}
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
		close(lines)
	}()

	fmt.Println(help)

	// Write loop
	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			return closeGracefully(c, done)
		case text, ok := <-lines:
			if !ok {
				return closeGracefully(c, done)
			}
			quit, err := dispatch(c, strings.Fields(text))
			if err != nil {
				log.Println(err)
			}
			if quit {
				return closeGracefully(c, done)
			}
		}
	}
}

func closeGracefully(c *websocket.Conn, done chan struct{}) error {
	writeMu.Lock()
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	writeMu.Unlock()
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return nil
}

func dispatch(c *websocket.Conn, fields []string) (quit bool, err error) {
	if len(fields) == 0 {
		return false, nil
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "name":
		return false, send(c, network.MsgTypeRegister, network.RegisterRequest{Name: strings.Join(fields[1:], " ")})
	case "create":
		pw := arg(2)
		return false, send(c, network.MsgTypeCreateRoom, network.CreateRoomRequest{Name: arg(1), Private: pw != "", Password: pw})
	case "join":
		return false, send(c, network.MsgTypeJoinRoom, network.JoinRoomRequest{RoomID: arg(1), Password: arg(2)})
	case "leave":
		return false, send(c, network.MsgTypeLeaveRoom, nil)
	case "place":
		return false, send(c, network.MsgTypeSubmitFleet, defaultFleet())
	case "fire":
		x, errX := strconv.Atoi(arg(1))
		y, errY := strconv.Atoi(arg(2))
		if errX != nil || errY != nil {
			return false, fmt.Errorf("usage: fire <x> <y>")
		}
		return false, send(c, network.MsgTypeSubmitShot, network.SubmitShotRequest{X: x, Y: y})
	case "quit", "exit":
		return true, nil
	default:
		fmt.Println(help)
		return false, nil
	}
}

// defaultFleet lays the five ships along the left edge.
func defaultFleet() network.SubmitFleetRequest {
	return network.SubmitFleetRequest{Ships: []network.ShipPlacement{
		{Kind: "carrier", Size: 5, X: 0, Y: 0, Orientation: "vertical"},
		{Kind: "battleship", Size: 4, X: 2, Y: 0, Orientation: "vertical"},
		{Kind: "cruiser", Size: 3, X: 4, Y: 0, Orientation: "vertical"},
		{Kind: "submarine", Size: 3, X: 6, Y: 0, Orientation: "vertical"},
		{Kind: "destroyer", Size: 2, X: 8, Y: 0, Orientation: "vertical"},
	}}
}

func outboundName(msgID uint16) string {
	switch msgID {
	case network.MsgTypeRegistered:
		return "registered"
	case network.MsgTypeError:
		return "error"
	case network.MsgTypeRoomCreated:
		return "roomCreated"
	case network.MsgTypeRoomJoined:
		return "roomJoined"
	case network.MsgTypeRoomLeft:
		return "roomLeft"
	case network.MsgTypePlayerJoined:
		return "playerJoined"
	case network.MsgTypePlayerLeft:
		return "playerLeft"
	case network.MsgTypePlacementStarted:
		return "placementStarted"
	case network.MsgTypeFleetAccepted:
		return "shipsPlaced"
	case network.MsgTypeBattleStarted:
		return "battleStarted"
	case network.MsgTypeShotResult:
		return "shotResult"
	case network.MsgTypeTurnChanged:
		return "turnChanged"
	case network.MsgTypeGameOver:
		return "gameOver"
	case network.MsgTypeRoomList:
		return "roomsUpdated"
	default:
		return "unknown"
	}
}

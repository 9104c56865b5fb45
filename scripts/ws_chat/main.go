package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomrelay/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "sender name and nickname")
	room := flag.String("room", "", "room code to join; a new room is created when empty")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var current atomic.Value
	current.Store("")

	send := func(typ string, data any) {
		in := proto.Inbound{Type: typ}
		if data != nil {
			payload, err := json.Marshal(data)
			if err != nil {
				log.Printf("marshal %s: %v", typ, err)
				return
			}
			in.Data = payload
		}
		if writeErr := wsjson.Write(ctx, conn, in); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	if *room == "" {
		send(proto.InboundTypeRoomCreate, nil)
	} else {
		send(proto.InboundTypeRoomJoin, proto.JoinData{Code: *room, Nickname: *user})
	}

	fmt.Printf("Connected to %s as %s\n", *addr, *user)
	fmt.Println("Type messages and press Enter to send. /create, /join CODE, Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, &current)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/create":
				send(proto.InboundTypeRoomCreate, nil)
			case strings.HasPrefix(line, "/join "):
				send(proto.InboundTypeRoomJoin, proto.JoinData{
					Code:     strings.TrimSpace(strings.TrimPrefix(line, "/join ")),
					Nickname: *user,
				})
			default:
				code := current.Load().(string)
				if code == "" {
					fmt.Println("not in a room yet")
					continue
				}
				send(proto.InboundTypeChatSend, proto.SendData{RoomCode: code, Sender: *user, Content: line})
			}
		}
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, current *atomic.Value) {
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch f.Type {
		case proto.OutboundTypeAck:
			var ack proto.Ack
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				log.Printf("unmarshal ack: %v", err)
				continue
			}
			if !ack.OK {
				fmt.Printf("! %s (%s)\n", ack.Error, ack.Code)
				continue
			}
			if ack.Room != nil {
				current.Store(ack.Room.Code)
				fmt.Printf("* now in room %s\n", ack.Room.Code)
			}
		case proto.OutboundTypeError:
			if f.Error != nil {
				fmt.Printf("! %s (%s)\n", f.Error.Msg, f.Error.Code)
			}
		case proto.OutboundTypeEvent:
			printEvent(f)
		}
	}
}

func printEvent(f frame) {
	switch f.Event {
	case proto.EventChatMessage:
		var msg proto.ChatMessage
		if err := json.Unmarshal(f.Data, &msg); err != nil {
			log.Printf("unmarshal message: %v", err)
			return
		}
		fmt.Printf("[%s] %s: %s\n", msg.RoomCode, msg.Sender, msg.Content)
	case proto.EventParticipantJoined, proto.EventParticipantLeft:
		var p proto.Participant
		if err := json.Unmarshal(f.Data, &p); err != nil {
			log.Printf("unmarshal participant: %v", err)
			return
		}
		who := "someone"
		if p.Nickname != nil {
			who = *p.Nickname
		}
		verb := "joined"
		if f.Event == proto.EventParticipantLeft {
			verb = "left"
		}
		fmt.Printf("[room %s] %s %s\n", p.RoomCode, who, verb)
	default:
		fmt.Printf("event=%s data=%s\n", f.Event, f.Data)
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/roomrelay/internal/proto"
)

type frame struct {
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	name   string
	conn   *websocket.Conn
	nextID int
}

func main() {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	nickname := flag.String("nickname", "smoke-b", "nickname of the joining connection")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a := dial(ctx, "A", *addr)
	defer a.conn.Close(websocket.StatusNormalClosure, "bye")
	b := dial(ctx, "B", *addr)
	defer b.conn.Close(websocket.StatusNormalClosure, "bye")

	created := a.request(ctx, proto.InboundTypeRoomCreate, nil)
	if !created.OK || created.Room == nil {
		log.Fatalf("create room failed: %s (%s)", created.Error, created.Code)
	}
	code := created.Room.Code
	fmt.Printf("A created room %s (id=%d)\n", code, created.Room.ID)

	joined := b.request(ctx, proto.InboundTypeRoomJoin, proto.JoinData{Code: code, Nickname: *nickname})
	if !joined.OK {
		log.Fatalf("join failed: %s (%s)", joined.Error, joined.Code)
	}
	fmt.Printf("B joined room %s\n", code)

	sent := a.request(ctx, proto.InboundTypeChatSend, proto.SendData{RoomCode: code, Sender: "smoke-a", Content: *text})
	if !sent.OK || sent.Message == nil {
		log.Fatalf("send failed: %s (%s)", sent.Error, sent.Code)
	}
	fmt.Printf("A sent message id=%d\n", sent.Message.ID)

	b.waitEvent(ctx, proto.EventChatMessage)

	missing := b.request(ctx, proto.InboundTypeRoomJoin, proto.JoinData{Code: "nope42"})
	fmt.Printf("B join unknown room: ok=%v error=%q\n", missing.OK, missing.Error)
}

func dial(ctx context.Context, name, addr string) *client {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", name, err)
	}
	return &client{name: name, conn: conn}
}

// request sends a frame and prints every frame until its ack arrives.
func (c *client) request(ctx context.Context, typ string, data any) proto.Ack {
	c.nextID++
	id := json.RawMessage(fmt.Sprint(c.nextID))

	in := proto.Inbound{Type: typ, ID: id}
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Fatalf("marshal %s: %v", typ, err)
		}
		in.Data = payload
	}
	if err := wsjson.Write(ctx, c.conn, in); err != nil {
		log.Fatalf("%s send %s: %v", c.name, typ, err)
	}

	for {
		f := c.read(ctx)
		if f.Type == proto.OutboundTypeAck && string(f.ID) == string(id) {
			var ack proto.Ack
			if err := json.Unmarshal(f.Data, &ack); err != nil {
				log.Fatalf("decode ack: %v", err)
			}
			return ack
		}
	}
}

func (c *client) waitEvent(ctx context.Context, event string) {
	for {
		if f := c.read(ctx); f.Event == event {
			return
		}
	}
}

func (c *client) read(ctx context.Context) frame {
	var f frame
	if err := wsjson.Read(ctx, c.conn, &f); err != nil {
		log.Fatalf("%s read: %v", c.name, err)
	}
	fmt.Printf("%s <- type=%s", c.name, f.Type)
	if f.Event != "" {
		fmt.Printf(" event=%s", f.Event)
	}
	fmt.Printf(" data=%s\n", f.Data)
	return f
}

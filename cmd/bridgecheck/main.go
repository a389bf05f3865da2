package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Junith-K/guess-the-imposter/internal/chat"
)

func main() {
	baseURL := os.Getenv("BRIDGE_BASE_URL")
	wsURL := os.Getenv("BRIDGE_WS_URL")

	if baseURL == "" {
		log.Fatal("BRIDGE_BASE_URL is required")
	}

	client := chat.NewClient(baseURL, chat.WithTimeout(8*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := client.Info(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: version=%s rooms=%d", info.Version, info.Rooms)
	}

	if wsURL == "" {
		log.Println("BRIDGE_WS_URL not set; skipping WS check")
		return
	}

	ws := chat.NewWebSocket(wsURL, 5, time.Second)
	ws.OnStateChange(func(state chat.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *chat.Message) {
		from := "?"
		if msg.Sender != nil {
			from = *msg.Sender
		}
		if msg.Feed != nil {
			fmt.Printf("WS feed room=%s type=%s user=%s\n", msg.Room, msg.Feed.Type, msg.Feed.UserID)
			return
		}
		fmt.Printf("WS msg room=%s from=%s text=%q\n", msg.Room, from, msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}

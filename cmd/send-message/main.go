package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/conf"
	"github.com/devricklin/mention-dispatch/internal/data"
	"github.com/devricklin/mention-dispatch/internal/logging"
)

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: send-message <message> [in_reply_to]")
		os.Exit(1)
	}
	message := os.Args[1]
	var opts repo.SendOptions
	if len(os.Args) > 2 {
		opts.InReplyTo = os.Args[2]
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	room, err := data.NewRoomRepo(cfg, logger)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	roomID := cfg.Room
	if resolver, ok := room.(repo.RoomResolver); ok {
		if roomID, err = resolver.ResolveRoom(ctx, cfg.Room); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}
	if opts.InReplyTo != "" && !room.SupportsThreads() {
		fmt.Printf("Warning: %s rooms have no threads, posting to the room\n", cfg.Platform)
	}

	id, err := room.SendMessage(ctx, roomID, message, opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Message sent successfully! id=%s\n", id)
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/devricklin/mention-dispatch/internal/mcp"
)

const version = "v1.0.0"

func main() {
	// Logs go to stderr, stdout carries the MCP stream
	log.SetOutput(os.Stderr)

	apiURL := os.Getenv("DISPATCH_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:9876"
	}

	server := mcp.NewServer(mcp.NewClient(apiURL), version)
	if err := server.Run(context.Background()); err != nil {
		log.Fatalf("MCP server error: %v", err)
	}
}

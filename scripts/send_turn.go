// Command send_turn fires a single synchronous turn at the agent
// backend and prints the decoded envelope. Handy for poking a backend
// without the full engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/adityow/sourcedesk/pkg/gateway"
	"github.com/adityow/sourcedesk/pkg/logging"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8787", "agent backend base URL")
	sessionID := flag.String("session", "", "session id (random when empty)")
	userID := flag.String("user", "demo-user", "user id")
	message := flag.String("message", "hello", "turn message")
	timeout := flag.Duration("timeout", 60*time.Second, "request timeout")
	flag.Parse()

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}
	log := logging.InitLogger(slog.LevelWarn)
	client := gateway.New(gateway.Config{
		BaseURL: *baseURL,
		UserID:  *userID,
		Timeout: *timeout,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	payload, err := client.SendTurn(ctx, id, *message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		os.Exit(1)
	}
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

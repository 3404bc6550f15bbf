// ABOUTME: Interactive WebSocket client for tars-gateway
// ABOUTME: Streams broadcast events and submits send/status requests from the terminal

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

const defaultGatewayURL = "ws://localhost:3000/ws"

type envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

type request struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Data any    `json:"data,omitempty"`
}

func main() {
	_ = godotenv.Load()

	urlFlag := flag.String("url", "", "gateway WebSocket URL (default TARS_GATEWAY_URL or "+defaultGatewayURL+")")
	flag.Parse()

	url := *urlFlag
	if url == "" {
		url = os.Getenv("TARS_GATEWAY_URL")
	}
	if url == "" {
		url = defaultGatewayURL
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, url); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, url string) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer conn.Close()

	color.New(color.FgGreen).Printf("connected to %s\n", url)
	fmt.Println("commands: send <number> <message> | pdf <number> | status | quit")
	fmt.Println()

	go readEvents(conn)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit":
			return nil

		case "status":
			if err := send(conn, request{ID: uuid.New().String(), Op: "check_status"}); err != nil {
				return err
			}

		case "send":
			if len(fields) < 3 {
				fmt.Println("usage: send <number> <message>")
				continue
			}
			if err := send(conn, request{
				ID: uuid.New().String(),
				Op: "send_message",
				Data: map[string]string{
					"number":  fields[1],
					"message": strings.Join(fields[2:], " "),
				},
			}); err != nil {
				return err
			}

		case "pdf":
			if len(fields) != 2 {
				fmt.Println("usage: pdf <number>")
				continue
			}
			if err := send(conn, request{
				ID:   uuid.New().String(),
				Op:   "send_pdf",
				Data: map[string]string{"number": fields[1]},
			}); err != nil {
				return err
			}

		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func send(conn *websocket.Conn, req request) error {
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("writing request: %w", err)
	}
	return nil
}

// readEvents prints the broadcast stream and request results as they
// arrive. Keep-alives are suppressed; they only signal liveness.
func readEvents(conn *websocket.Conn) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	magenta := color.New(color.FgMagenta)
	gray := color.New(color.FgHiBlack)

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			gray.Println("\nconnection closed")
			os.Exit(0)
		}

		switch env.Type {
		case "keep_alive":
			// liveness only

		case "qr":
			var data struct {
				Token string `json:"token"`
			}
			_ = json.Unmarshal(env.Data, &data)
			yellow.Printf("\n[qr] pair this session with token: %s\n> ", data.Token)

		case "connection_status":
			var data struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(env.Data, &data)
			magenta.Printf("\n[status] %s\n> ", data.Status)

		case "new_message":
			var data struct {
				From      string `json:"from"`
				Sender    string `json:"sender"`
				Message   string `json:"message"`
				Timestamp int64  `json:"timestamp"`
				Type      string `json:"type"`
			}
			_ = json.Unmarshal(env.Data, &data)
			cyan.Printf("\n[%s] %s: %s\n> ", data.Type, data.Sender, data.Message)

		case "result":
			fmt.Printf("\n[result %s] %s\n> ", shortID(env.ID), string(env.Data))

		default:
			gray.Printf("\n[%s] %s\n> ", env.Type, string(env.Data))
		}
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

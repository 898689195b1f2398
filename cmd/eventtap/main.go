// eventtap connects to a running gateway and streams its observer events
// to the console. Useful for watching the push feed without a frontend.
//
// Usage: go run ./cmd/eventtap --addr localhost:5001 --email admin@x.com --password secret
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

func main() {
	addr := flag.String("addr", "localhost:5001", "gateway host:port")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "admin email")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Authenticate first so the session cookie also works against the
	// REST endpoints if needed later.
	var login struct {
		Token string `json:"token"`
	}
	resp, err := resty.New().R().
		SetContext(ctx).
		SetBody(map[string]string{"admin_email": *email, "admin_password": *password}).
		SetResult(&login).
		Post("http://" + *addr + "/login")
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	if resp.IsError() {
		logger.Error("login rejected", "status", resp.StatusCode())
		os.Exit(1)
	}
	logger.Info("authenticated", "addr", *addr)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+login.Token)

	conn, _, err := dialer.DialContext(ctx, "ws://"+*addr+"/ws", header)
	if err != nil {
		logger.Error("websocket dial failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	logger.Info("streaming started - press Ctrl+C to stop")

	go func() {
		<-ctx.Done()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}()

	var count int
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				logger.Error("read failed", "error", err)
			}
			break
		}

		count++
		printEvent(data, *verbose)
	}

	logger.Info("stream closed", "events_received", count)
}

func printEvent(data []byte, verbose bool) {
	if verbose {
		var pretty json.RawMessage = data
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err == nil {
			fmt.Printf("%s\n", out)
			return
		}
	}

	var ev struct {
		Event     string `json:"event"`
		AccountID string `json:"accountId"`
		OrderID   string `json:"orderId"`
		DealID    string `json:"dealId"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		fmt.Printf("[RAW] %s\n", data)
		return
	}

	switch {
	case ev.DealID != "":
		fmt.Printf("[%s] account=%s deal=%s\n", ev.Event, ev.AccountID, ev.DealID)
	case ev.OrderID != "":
		fmt.Printf("[%s] account=%s order=%s\n", ev.Event, ev.AccountID, ev.OrderID)
	default:
		fmt.Printf("[%s] account=%s\n", ev.Event, ev.AccountID)
	}
}

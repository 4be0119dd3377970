// ABOUTME: Operator CLI for the pso-orchestrator
// ABOUTME: Sends camera commands and inspects streaming sessions from the terminal

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: psoctl <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  start TARGET [REASON]      Send a START command to a PSO")
		fmt.Println("  stop TARGET [REASON]       Send a STOP command to a PSO")
		fmt.Println("  sessions                   List active streaming sessions")
		fmt.Println("  latest EMAIL [EMAIL...]    Show the latest session per email")
		fmt.Println("  health                     Check orchestrator health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "start":
		err = runCommand(ctx, "START")
	case "stop":
		err = runCommand(ctx, "STOP")
	case "sessions":
		err = runSessions(ctx)
	case "latest":
		err = runLatest(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// apiClient is a thin authenticated HTTP client for the orchestrator API.
type apiClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newClient() (*apiClient, error) {
	cfg, err := loadConfig(configPath())
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL: cfg.Server.URL,
		token:   cfg.Auth.Token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func runCommand(ctx context.Context, cmdType string) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: psoctl %s TARGET [REASON]", os.Args[1])
	}
	target := os.Args[2]
	reason := ""
	if len(os.Args) > 3 {
		reason = os.Args[3]
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var result struct {
		DeliveredVia string `json:"deliveredVia"`
	}
	_, err = client.do(ctx, http.MethodPost, "/api/commands",
		map[string]string{"target": target, "type": cmdType, "reason": reason}, &result)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("%s sent to %s ", cmdType, target)
	if result.DeliveredVia == "realtime" {
		color.New(color.FgCyan).Println("[realtime]")
	} else {
		color.New(color.FgYellow).Println("[queued]")
	}
	return nil
}

type sessionView struct {
	UserID     string     `json:"userId"`
	Email      string     `json:"email"`
	StartedAt  time.Time  `json:"startedAt"`
	StoppedAt  *time.Time `json:"stoppedAt"`
	StopReason string     `json:"stopReason"`
	Timer      *struct {
		Color       string `json:"color"`
		DisplayTime string `json:"displayTime"`
	} `json:"timer"`
}

func printSession(s *sessionView) {
	bold := color.New(color.Bold)
	gray := color.New(color.FgHiBlack)

	bold.Printf("  %s", s.Email)
	gray.Printf(" (%s)", s.UserID)

	if s.StoppedAt == nil {
		color.New(color.FgGreen).Print("  streaming")
		gray.Printf("  since %s", s.StartedAt.Local().Format("15:04:05"))
	} else {
		color.New(color.FgYellow).Printf("  stopped")
		if s.StopReason != "" {
			gray.Printf("  %s", s.StopReason)
		}
		if s.Timer != nil {
			timerColor := color.New(color.FgGreen)
			switch s.Timer.Color {
			case "yellow":
				timerColor = color.New(color.FgYellow)
			case "red":
				timerColor = color.New(color.FgRed)
			}
			fmt.Print("  ")
			timerColor.Print(s.Timer.DisplayTime)
		}
	}
	fmt.Println()
}

func runSessions(ctx context.Context) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	var sessions []sessionView
	_, err = client.do(ctx, http.MethodGet, "/api/streaming-sessions/active", nil, &sessions)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	fmt.Printf("%d active session(s):\n", len(sessions))
	for i := range sessions {
		printSession(&sessions[i])
	}
	return nil
}

func runLatest(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: psoctl latest EMAIL [EMAIL...]")
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	var results []struct {
		Email   string       `json:"email"`
		Session *sessionView `json:"session"`
	}
	_, err = client.do(ctx, http.MethodPost, "/api/streaming-sessions/latest",
		map[string][]string{"emails": os.Args[2:]}, &results)
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Session == nil {
			color.New(color.FgHiBlack).Printf("  %s  no sessions\n", result.Email)
			continue
		}
		printSession(result.Session)
	}
	return nil
}

func runHealth(ctx context.Context) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	status, err := client.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", status)
	}

	color.New(color.FgGreen).Print("✓ ")
	fmt.Println("orchestrator is healthy")
	return nil
}

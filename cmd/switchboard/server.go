package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/voicedesk/switchboard/internal/api"
	"github.com/voicedesk/switchboard/internal/config"
	"github.com/voicedesk/switchboard/internal/escalation"
	"github.com/voicedesk/switchboard/internal/knowledge"
	"github.com/voicedesk/switchboard/internal/notify"
	"github.com/voicedesk/switchboard/internal/request"
	"github.com/voicedesk/switchboard/internal/storage"
	"github.com/voicedesk/switchboard/internal/sweeper"
	"github.com/voicedesk/switchboard/internal/voice"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the switchboard server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running switchboard server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show switchboard system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "switchboard.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "switchboard version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	// Refuse to start twice. The health endpoint is authoritative; the PID
	// file only adds detail to the message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("switchboard is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("switchboard is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Wire the escalation stack.
	kn := knowledge.NewService(store)
	requests := request.NewManager(store, cfg.Escalation.RequestTimeout)
	hub := notify.NewHub()
	voiceClient := voice.NewClient(voice.Config{
		URL:       cfg.Voice.LiveKitURL,
		APIKey:    cfg.Voice.APIKey,
		APISecret: cfg.Voice.APISecret,
	})
	engine := escalation.NewEngine(kn, requests, voiceClient, hub)

	deps := api.Deps{
		Engine:    engine,
		Requests:  requests,
		Knowledge: kn,
		Voice:     voiceClient,
		Hub:       hub,
		Token:     cfg.API.Token,
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(deps),
	}

	// Timeout sweeper reclaims help requests no supervisor answered in time.
	sw := sweeper.New(requests, voiceClient, hub, cfg.Escalation.SweepInterval)
	go sw.Run(ctx)

	// MCP server over stdio, so agent runtimes can drive the same workflow.
	stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "switchboard listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("switchboard is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop switchboard (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to switchboard (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}

	var health struct {
		Status           string `json:"status"`
		ConnectedClients int    `json:"connectedClients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil {
		printStatus("Server", "running on port %d (%s)", cfg.Server.Port, health.Status)
		printStatus("Dashboard clients", "%d", health.ConnectedClients)
	} else {
		printStatus("Server", "running on port %d", cfg.Server.Port)
	}

	printStatus("Request timeout", "%s", cfg.Escalation.RequestTimeout)
	printStatus("Sweep interval", "%s", cfg.Escalation.SweepInterval)
	printStatus("LiveKit", "%s", cfg.Voice.LiveKitURL)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

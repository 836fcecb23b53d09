// ABOUTME: Entry point for light-assistant, a personal chat relay to a local language model
// ABOUTME: Subcommands serve, init, token, and health

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/its-lightning/light-assistant/internal/auth"
	"github.com/its-lightning/light-assistant/internal/config"
	"github.com/its-lightning/light-assistant/internal/server"
)

// Version is set at build time.
var version = "dev"

const banner = `
 _ _       _     _
| (_) __ _| |__ | |_
| | |/ _' | '_ \| __|
| | | (_| | | | | |_
|_|_|\__, |_| |_|\__|  assistant
     |___/
`

// getDataPath returns the default data directory.
// Priority: XDG_DATA_HOME/light-assistant > ~/.local/share/light-assistant
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "light-assistant")
}

func usage() {
	fmt.Println("Usage: light-assistant <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                 Start the chat server")
	fmt.Println("  init                  Create a new config file interactively")
	fmt.Println("  token --email EMAIL   Mint a session token for an allowed email")
	fmt.Println("  health                Check server and backend health")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := setupLogger(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Model:     %s @ %s\n", cfg.Backend.Model, cfg.Backend.URL)
	green.Print("    ▶ ")
	fmt.Printf("Storage:   %s (%s)\n", cfg.Storage.Backend, cfg.Storage.Path)
	green.Print("    ▶ ")
	fmt.Printf("Allowed:   %s\n", strings.Join(cfg.Auth.AllowedEmails, ", "))
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	} else {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Println()

	logger.Info("starting light-assistant",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"model", cfg.Backend.Model)

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Run(ctx)
}

// runToken mints a session token. It stands in for the external identity
// provider: the token can be sent as a bearer header or exchanged for the
// session cookie at /login.
func runToken(args []string, out io.Writer) error {
	email, err := parseTokenArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	sessions, err := auth.NewSessions([]byte(cfg.Auth.SessionSecret), cfg.Auth.SessionTTL, cfg.Auth.AllowedEmails)
	if err != nil {
		return err
	}
	token, err := sessions.Issue(email)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	color.New(color.FgHiBlack).Fprintf(out, "login: http://%s/login?token=%s\n", cfg.Server.HTTPAddr, token)
	return nil
}

// parseTokenArgs accepts --email/-e as "--email value" or "--email=value".
func parseTokenArgs(args []string) (string, error) {
	var email string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return "", fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("--email flag is required")
	}
	return email, nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	var health server.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("reading health response: %w", err)
	}

	backend := color.GreenString(health.Backend)
	if health.Backend != "online" {
		backend = color.RedString(health.Backend)
	}
	fmt.Printf("server:  %s\n", color.GreenString(health.Status))
	fmt.Printf("model:   %s\n", health.Model)
	fmt.Printf("backend: %s\n", backend)
	fmt.Printf("streams: %d\n", health.Streams)
	return nil
}

// ABOUTME: Interactive starter config writer
// ABOUTME: Generates a random session secret and writes YAML with sensible defaults

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/its-lightning/light-assistant/internal/config"
)

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("light-assistant configuration setup")
	fmt.Println("===================================")
	fmt.Println()

	cfg, outputFile, err := promptConfig(reader, config.DefaultPath(), getDataPath())
	if err != nil {
		return err
	}
	if cfg == nil {
		fmt.Println("Aborted.")
		return nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	header := "# light-assistant configuration\n# Generated by light-assistant init\n\n"

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the session secret
	if err := os.WriteFile(outputFile, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  light-assistant serve")
	fmt.Printf("  light-assistant token --email %s\n", cfg.Auth.AllowedEmails[0])
	return nil
}

// promptConfig asks for each setting. It returns a nil config when the user
// declines to overwrite an existing file.
func promptConfig(reader *bufio.Reader, defaultConfigPath, dataPath string) (*config.Config, string, error) {
	cfg := config.Default()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			return nil, "", nil
		}
	}

	fmt.Println("\n--- Server ---")
	cfg.Server.HTTPAddr = prompt(reader, "HTTP address", cfg.Server.HTTPAddr)

	fmt.Println("\n--- Language model backend ---")
	cfg.Backend.URL = prompt(reader, "Backend URL", cfg.Backend.URL)
	cfg.Backend.Model = prompt(reader, "Model", cfg.Backend.Model)

	fmt.Println("\n--- Storage ---")
	cfg.Storage.Backend = strings.ToLower(prompt(reader, "Storage backend (file/sqlite/bolt)", cfg.Storage.Backend))
	cfg.Storage.Path = prompt(reader, "Storage path", defaultStoragePath(dataPath, cfg.Storage.Backend))

	fmt.Println("\n--- Access ---")
	emails := prompt(reader, "Allowed emails (comma separated)", "")
	for _, e := range strings.Split(emails, ",") {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			cfg.Auth.AllowedEmails = append(cfg.Auth.AllowedEmails, e)
		}
	}
	if len(cfg.Auth.AllowedEmails) == 0 {
		return nil, "", fmt.Errorf("at least one allowed email is required")
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, "", err
	}
	cfg.Auth.SessionSecret = secret

	fmt.Println("\n--- Tailscale ---")
	if yes(prompt(reader, "Enable Tailscale?", "no")) {
		cfg.Tailscale.Enabled = true
		cfg.Tailscale.Hostname = prompt(reader, "Tailscale hostname", cfg.Tailscale.Hostname)
		cfg.Tailscale.AuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		cfg.Tailscale.Ephemeral = yes(prompt(reader, "Ephemeral node?", "no"))
	}

	fmt.Println("\n--- Logging ---")
	cfg.Logging.Level = prompt(reader, "Log level (debug/info/warn/error)", cfg.Logging.Level)
	cfg.Logging.Format = prompt(reader, "Log format (text/json)", cfg.Logging.Format)

	// Catch typos before anything is written
	data, err := cfg.Marshal()
	if err != nil {
		return nil, "", fmt.Errorf("encoding config: %w", err)
	}
	if _, err := config.Parse(data, false); err != nil {
		return nil, "", err
	}
	return cfg, outputFile, nil
}

func defaultStoragePath(dataPath, backend string) string {
	switch backend {
	case config.StorageSQLite:
		return filepath.Join(dataPath, "light-assistant.db")
	case config.StorageBolt:
		return filepath.Join(dataPath, "light-assistant.bolt")
	default:
		return filepath.Join(dataPath, "conversations")
	}
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating session secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

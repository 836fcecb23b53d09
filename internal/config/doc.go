// Package config loads light-assistant configuration.
//
// The file is YAML unless its name ends in .toml. ${VAR} references are replaced
// with environment values before decoding, and any field left out keeps the
// value from Default. Durations are written as strings ("120s", "168h").
//
// Example:
//
//	server:
//	  http_addr: "127.0.0.1:5050"
//	storage:
//	  backend: sqlite
//	  path: "/var/lib/light-assistant/data.db"
//	backend:
//	  url: "http://localhost:11434"
//	  model: "llama3:8b"
//	  timeout: "120s"
//	auth:
//	  session_secret: "${LIGHT_SESSION_SECRET}"
//	  allowed_emails: ["me@example.com"]
//
// DefaultPath picks the file from $LIGHT_CONFIG or the XDG config directory.
package config

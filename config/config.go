// Package config loads server configuration from a TOML file, falling
// back to an embedded default document exactly as the checked-out-from
// document describes.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed config.default.toml
var defaultTOML []byte

// ProviderTokenEnv is the environment variable the Telegram bot token is
// read from. It is never written to disk.
const ProviderTokenEnv = "AILOOP_PROVIDER_TOKEN"

// ServerConfig holds the HTTP/WebSocket listener address.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// TelegramConfig holds the notification-sink chat target. The bot token
// itself comes from ProviderTokenEnv, not from this file.
type TelegramConfig struct {
	ChatID string `toml:"chat_id"`
}

// WorkflowConfig holds the path to the persisted workflow JSON store and the
// directory of YAML workflow definitions to register at startup.
type WorkflowConfig struct {
	StorePath      string `toml:"store_path"`
	DefinitionsDir string `toml:"definitions_dir"`
}

// Data is the serializable configuration document.
type Data struct {
	Server         ServerConfig   `toml:"server"`
	DefaultChannel string         `toml:"default_channel"`
	LogLevel       string         `toml:"log_level"`
	Telegram       TelegramConfig `toml:"telegram"`
	Workflow       WorkflowConfig `toml:"workflow"`
}

// Global is a thread-safe wrapper around Data.
type Global struct {
	mu   sync.RWMutex
	data Data
}

// Load reads and decodes the TOML file at path. If path does not exist, the
// embedded default document is used instead (and path is left untouched —
// this is a fallback for local runs, not an auto-seeding write).
func Load(path string) (*Global, error) {
	g := &Global{data: defaults()}

	if path == "" {
		return g, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var d Data
	if _, err := toml.Decode(string(raw), &d); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	g.data = d
	return g, nil
}

func defaults() Data {
	var d Data
	if _, err := toml.Decode(string(defaultTOML), &d); err != nil {
		panic(fmt.Sprintf("config: embedded default document is invalid: %v", err))
	}
	return d
}

// Get returns a thread-safe copy of the current configuration.
func (g *Global) Get() Data {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.data
}

// ProviderToken reads the Telegram bot token from the environment. Callers
// must never persist the returned value.
func ProviderToken() string {
	return os.Getenv(ProviderTokenEnv)
}

// WorkflowStorePath resolves the configured workflow store path against the
// user's home directory when it is relative, matching the "<home>/.ailoop/…"
// convention.
func (g *Global) WorkflowStorePath() (string, error) {
	d := g.Get()
	path := d.Workflow.StorePath
	if path == "" {
		path = ".ailoop/workflow_store.json"
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, path), nil
}

// WorkflowDefinitionsDir resolves the configured workflow definitions
// directory against the user's home directory when it is relative.
func (g *Global) WorkflowDefinitionsDir() (string, error) {
	d := g.Get()
	path := d.Workflow.DefinitionsDir
	if path == "" {
		path = ".ailoop/workflows"
	}
	if filepath.IsAbs(path) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, path), nil
}

package pidscan

import (
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/pidscan/llm"
)

// Config holds all configuration for the pidscan engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.pidscan/<DBName>.db
	DBPath string `json:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set. "home" (default) uses ~/.pidscan/, "local" uses cwd.
	StorageDir string `json:"storage_dir"`

	// SessionRoot is the filesystem root under which every session gets its
	// own "<SessionRoot>/<session_id>/" directory for raw input and derived
	// artifacts.
	SessionRoot string `json:"session_root"`

	// Vision is the VLM provider used by C3/C5/C6.
	Vision llm.Config `json:"vision"`

	// Chat is not read by New. The NL-to-SQL chat surface tries the Vision
	// provider first, then each of ChatFallbacks in order if it errors.
	Chat          llm.Config   `json:"chat"`
	ChatFallbacks []llm.Config `json:"chat_fallbacks"`

	// Page renderer bounds (C1).
	MaxPixelExtent int     `json:"max_pixel_extent"`
	MinDPI         float64 `json:"min_dpi"`
	HardCeilingDPI float64 `json:"hard_ceiling_dpi"`

	// InterCallDelay is the minimum spacing between VLM calls within one
	// session (spec §4.3's 0.5s rate control).
	InterCallDelay time.Duration `json:"inter_call_delay"`

	// VLMTimeout is not applied by the engine; each provider HTTP request is
	// bounded only by the llm package's fixed 120 s client timeout.
	VLMTimeout time.Duration `json:"vlm_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBName:         "pidscan",
		StorageDir:     "home",
		SessionRoot:    "sessions",
		MaxPixelExtent: 5000,
		MinDPI:         72,
		HardCeilingDPI: 300,
		InterCallDelay: 500 * time.Millisecond,
		VLMTimeout:     3 * time.Minute,
		Vision: llm.Config{
			Provider: "openai",
			Model:    "gpt-4o",
		},
		Chat: llm.Config{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		ChatFallbacks: []llm.Config{
			{Provider: "anthropic", Model: "claude-3-5-sonnet-20241022"},
			{Provider: "gemini", Model: "gemini-2.5-flash"},
		},
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "pidscan"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		dir := filepath.Join(home, ".pidscan")
		return filepath.Join(dir, name+".db")
	}
}

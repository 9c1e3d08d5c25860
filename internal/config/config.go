package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultSessionFile = "assistant.json"
	DefaultLogDir      = "logs"
	DefaultDBPath      = "assistant.db"
	DefaultMaxPolls    = 200

	EnvPrefix = "ASSISTANTCHAT"
)

// Config holds application configuration
type Config struct {
	SessionFile   string
	LogDir        string
	DBPath        string
	Debug         bool
	MaxPolls      int // Upper bound on run status checks per invocation
	NoHistory     bool
	AssistantFile string // Optional YAML assistant definition

	APIKey  string
	BaseURL string

	// MCP Configuration
	MCPEnabled       bool     // Register MCP tools as assistant function tools
	MCPLocalServers  []string // Paths to Python MCP servers
	MCPRemoteServers []string // URLs to remote MCP servers (http:// or ws://)
}

// SetDefaults registers default values and environment bindings on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("session_file", DefaultSessionFile)
	v.SetDefault("log_dir", DefaultLogDir)
	v.SetDefault("db_path", DefaultDBPath)
	v.SetDefault("max_polls", DefaultMaxPolls)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("base_url", "OPENAI_BASE_URL")
}

// Load builds a Config from v
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		SessionFile:      v.GetString("session_file"),
		LogDir:           v.GetString("log_dir"),
		DBPath:           v.GetString("db_path"),
		Debug:            v.GetBool("debug"),
		MaxPolls:         v.GetInt("max_polls"),
		NoHistory:        v.GetBool("no_history"),
		AssistantFile:    v.GetString("assistant_file"),
		APIKey:           v.GetString("api_key"),
		BaseURL:          v.GetString("base_url"),
		MCPEnabled:       v.GetBool("mcp_enabled"),
		MCPLocalServers:  splitList(v.GetStringSlice("mcp_local")),
		MCPRemoteServers: splitList(v.GetStringSlice("mcp_remote")),
	}

	if cfg.SessionFile == "" {
		return Config{}, fmt.Errorf("session file path is empty")
	}
	if cfg.MaxPolls <= 0 {
		return Config{}, fmt.Errorf("max polls must be positive, got %d", cfg.MaxPolls)
	}
	return cfg, nil
}

// splitList flattens comma-separated entries coming from env vars
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

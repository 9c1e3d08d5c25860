package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AssistantChat/internal/session"
)

func TestLoad_Defaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultSessionFile, cfg.SessionFile)
	assert.Equal(t, DefaultLogDir, cfg.LogDir)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultMaxPolls, cfg.MaxPolls)
	assert.False(t, cfg.MCPEnabled)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")
	t.Setenv("ASSISTANTCHAT_MAX_POLLS", "7")
	t.Setenv("ASSISTANTCHAT_MCP_REMOTE", "http://a:1, ws://b:2")

	v := viper.New()
	SetDefaults(v)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, "http://localhost:9999/v1", cfg.BaseURL)
	assert.Equal(t, 7, cfg.MaxPolls)
	assert.Equal(t, []string{"http://a:1", "ws://b:2"}, cfg.MCPRemoteServers)
}

func TestLoad_InvalidMaxPolls(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("max_polls", 0)

	_, err := Load(v)
	assert.Error(t, err)
}

func TestLoadAssistantDefinition(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    AssistantDefinition
		wantErr bool
	}{
		{
			name:    "partial file keeps defaults",
			content: "name: Physics Tutor\n",
			want: AssistantDefinition{
				Name:         "Physics Tutor",
				Instructions: DefaultInstructions,
				Model:        DefaultModel,
				Tools:        []string{ToolCodeInterpreter},
			},
		},
		{
			name: "full file",
			content: `name: Reader
description: Answers questions about documents
instructions: Read carefully.
model: gpt-4o
tools: [file_search]
metadata:
  owner: docs
`,
			want: AssistantDefinition{
				Name:         "Reader",
				Description:  "Answers questions about documents",
				Instructions: "Read carefully.",
				Model:        "gpt-4o",
				Tools:        []string{ToolFileSearch},
				Metadata:     map[string]string{"owner": "docs"},
			},
		},
		{
			name:    "unknown tool",
			content: "tools: [browser]\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			content: "name: [unterminated\n",
			wantErr: true,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "assistant"+string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			got, err := LoadAssistantDefinition(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadAssistantDefinition_NoPath(t *testing.T) {
	def, err := LoadAssistantDefinition("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAssistant(), def)
}

func TestWithOverrides(t *testing.T) {
	st := &session.State{Name: "Custom", Model: "gpt-4o-mini"}

	def := DefaultAssistant().WithOverrides(st)
	assert.Equal(t, "Custom", def.Name)
	assert.Equal(t, "gpt-4o-mini", def.Model)
	assert.Equal(t, DefaultInstructions, def.Instructions)
}

func TestRunInstructions(t *testing.T) {
	assert.Equal(t, "Please address the user as Ada.", RunInstructions("Ada"))
	assert.Equal(t, "Please address the user as User.", RunInstructions(""))
}

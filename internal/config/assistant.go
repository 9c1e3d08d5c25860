package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"AssistantChat/internal/session"
)

// Defaults used when neither the definition file nor the session file say otherwise
const (
	DefaultAssistantName  = "Math Tutor"
	DefaultInstructions   = "You are a personal math tutor. Write and run code to answer math questions."
	DefaultModel          = "gpt-4-1106-preview"
	DefaultUserName       = "User"
	DefaultQuestion       = "I need to solve the equation `3x + 11 = 14`. Can you help me?"
	ToolCodeInterpreter   = "code_interpreter"
	ToolFileSearch        = "file_search"
	runInstructionsFormat = "Please address the user as %s."
)

// AssistantDefinition describes the assistant created when none exists yet
type AssistantDefinition struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Instructions string            `yaml:"instructions"`
	Model        string            `yaml:"model"`
	Tools        []string          `yaml:"tools"`
	Metadata     map[string]string `yaml:"metadata"`
}

// DefaultAssistant returns the built-in math tutor definition
func DefaultAssistant() AssistantDefinition {
	return AssistantDefinition{
		Name:         DefaultAssistantName,
		Instructions: DefaultInstructions,
		Model:        DefaultModel,
		Tools:        []string{ToolCodeInterpreter},
	}
}

// LoadAssistantDefinition reads a YAML definition and fills unset fields from the defaults
func LoadAssistantDefinition(path string) (AssistantDefinition, error) {
	def := DefaultAssistant()
	if path == "" {
		return def, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("failed to read assistant file: %w", err)
	}

	var fromFile AssistantDefinition
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return def, fmt.Errorf("failed to parse assistant file %s: %w", path, err)
	}

	for _, tool := range fromFile.Tools {
		switch tool {
		case ToolCodeInterpreter, ToolFileSearch:
		default:
			return def, fmt.Errorf("unsupported tool %q in %s", tool, path)
		}
	}

	if fromFile.Name != "" {
		def.Name = fromFile.Name
	}
	if fromFile.Instructions != "" {
		def.Instructions = fromFile.Instructions
	}
	if fromFile.Model != "" {
		def.Model = fromFile.Model
	}
	if fromFile.Tools != nil {
		def.Tools = fromFile.Tools
	}
	def.Description = fromFile.Description
	def.Metadata = fromFile.Metadata
	return def, nil
}

// WithOverrides applies the name, instructions and model stored in the session file
func (d AssistantDefinition) WithOverrides(st *session.State) AssistantDefinition {
	if st.Name != "" {
		d.Name = st.Name
	}
	if st.Instructions != "" {
		d.Instructions = st.Instructions
	}
	if st.Model != "" {
		d.Model = st.Model
	}
	return d
}

// RunInstructions returns the per-run instructions addressing userName
func RunInstructions(userName string) string {
	if userName == "" {
		userName = DefaultUserName
	}
	return fmt.Sprintf(runInstructionsFormat, userName)
}

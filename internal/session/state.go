package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// DefaultDelay is the pause between two run status checks
const DefaultDelay = 9000

// State is the record linking CLI invocations to remote assistant, thread and run ids
type State struct {
	Assistant string   `json:"assistant,omitempty"`
	Thread    string   `json:"thread,omitempty"`
	Run       string   `json:"run,omitempty"`
	UserName  string   `json:"userName,omitempty"`
	Questions []string `json:"questions,omitempty"`
	Delay     int      `json:"delay,omitempty"` // milliseconds

	// Assistant overrides applied when a new assistant is created
	Name         string `json:"name,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Model        string `json:"model,omitempty"`

	path string
}

// Load reads the state from path. A missing file yields an empty state bound to path.
func Load(path string) (*State, error) {
	st := &State{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	st.path = path
	return st, nil
}

// Save overwrites the session file with the current state
func (s *State) Save() error {
	if s.path == "" {
		return fmt.Errorf("session state has no file path")
	}

	data, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Path returns the file the state is persisted to
func (s *State) Path() string {
	return s.path
}

// PollDelay returns the configured delay, falling back to DefaultDelay
func (s *State) PollDelay() time.Duration {
	if s.Delay <= 0 {
		return DefaultDelay * time.Millisecond
	}
	return time.Duration(s.Delay) * time.Millisecond
}

// ClearAssistant forgets the assistant and everything that hangs off it
func (s *State) ClearAssistant() {
	s.Assistant = ""
	s.Thread = ""
	s.Run = ""
}

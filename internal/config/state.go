package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
)

type stateData struct {
	// KnownWatches maps a Bluetooth address to the watch name last seen.
	KnownWatches map[string]string `json:"known_watches"`
	LastWatch    string            `json:"last_watch"`
}

// State remembers the watches this host connected to, so a later run can
// reconnect without an address on the command line.
type State struct {
	filePath string
	data     stateData
	logger   *log.Logger
}

// LoadState reads the state file in dir. A missing or unreadable file
// yields an empty state.
func LoadState(dir string, logger *log.Logger) *State {
	if logger == nil {
		panic("State: logger cannot be nil")
	}
	s := &State{
		filePath: filepath.Join(dir, "state.json"),
		logger:   logger,
	}
	s.load()
	return s
}

// LastWatch returns the address of the watch used last, or "".
func (s *State) LastWatch() string { return s.data.LastWatch }

// IsKnown reports whether the watch at address was connected before.
func (s *State) IsKnown(address string) bool {
	_, ok := s.data.KnownWatches[address]
	return ok
}

// Known returns the remembered addresses, sorted.
func (s *State) Known() []string {
	out := make([]string, 0, len(s.data.KnownWatches))
	for addr := range s.data.KnownWatches {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Name returns the name remembered for address.
func (s *State) Name(address string) string { return s.data.KnownWatches[address] }

// Remember records a successful connection and saves the state.
func (s *State) Remember(address, name string) error {
	s.logger.Printf("State: remember %s -> %q", address, name)
	s.data.KnownWatches[address] = name
	s.data.LastWatch = address
	return s.save()
}

func (s *State) load() {
	s.data = stateData{KnownWatches: make(map[string]string)}
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		s.logger.Printf("State: load %s (no existing file)", s.filePath)
		return
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		s.logger.Printf("State: load %s failed to parse: %v", s.filePath, err)
		s.data = stateData{}
	}
	if s.data.KnownWatches == nil {
		s.data.KnownWatches = make(map[string]string)
	}
}

func (s *State) save() error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, raw, 0o644)
}

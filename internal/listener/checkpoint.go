package listener

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CheckpointFile is the file name used under the data directory.
const CheckpointFile = "listener-state.json"

// NetworkCheckpoint records how far a network's oracle has been indexed.
type NetworkCheckpoint struct {
	ChainID          uint64 `json:"chainId"`
	OracleAddress    string `json:"oracleAddress"`
	LastIndexedBlock uint64 `json:"lastIndexedBlock"`
	LastUpdated      string `json:"lastUpdated"`
}

type checkpointState struct {
	Networks map[string]NetworkCheckpoint `json:"networks"`
}

// Checkpoints persists listener progress as JSON. An empty path keeps it in
// memory only.
type Checkpoints struct {
	path  string
	mu    sync.Mutex
	state checkpointState
}

func LoadCheckpoints(path string) (*Checkpoints, error) {
	c := &Checkpoints{
		path:  path,
		state: checkpointState{Networks: make(map[string]NetworkCheckpoint)},
	}
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := json.Unmarshal(data, &c.state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	if c.state.Networks == nil {
		c.state.Networks = make(map[string]NetworkCheckpoint)
	}
	return c, nil
}

func (c *Checkpoints) Get(network string) (NetworkCheckpoint, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok := c.state.Networks[network]
	return cp, ok
}

// Update stores cp for network and writes the file.
func (c *Checkpoints) Update(network string, cp NetworkCheckpoint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	c.state.Networks[network] = cp
	return c.save()
}

func (c *Checkpoints) save() error {
	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(c.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, c.path)
}

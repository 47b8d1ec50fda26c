// internal/agent/memory.go
package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DefaultMemoryCapacity bounds the interaction history when no capacity is configured.
const DefaultMemoryCapacity = 50

// MemoryEntry records one successfully executed job.
type MemoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	PageURL   string    `json:"page_url,omitempty"`
	Action    JobKind   `json:"action"`
	// Selector holds the job's target: the URL for Navigate, the prefix for Screenshot.
	Selector string `json:"selector,omitempty"`
	Job      Job    `json:"job"`
}

// NewMemoryEntry builds the entry for a completed job.
func NewMemoryEntry(job Job, pageURL string, at time.Time) MemoryEntry {
	return MemoryEntry{
		Timestamp: at.UTC(),
		PageURL:   pageURL,
		Action:    job.Kind,
		Selector:  job.Target(),
		Job:       job,
	}
}

// Memory is a capacity-bounded FIFO of interaction history.
type Memory struct {
	mu       sync.RWMutex
	entries  []MemoryEntry
	capacity int
}

// NewMemory creates an empty memory. A non-positive capacity uses DefaultMemoryCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity}
}

// Add appends the entry, then evicts from the front until the capacity holds.
func (m *Memory) Add(entry MemoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if over := len(m.entries) - m.capacity; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
}

// All returns a copy of the history, oldest first.
func (m *Memory) All() []MemoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemoryEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// LastN returns up to n entries, most recent first.
func (m *Memory) LastN(n int) []MemoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.entries) {
		n = len(m.entries)
	}
	if n <= 0 {
		return []MemoryEntry{}
	}
	out := make([]MemoryEntry, 0, n)
	for i := len(m.entries) - 1; i >= len(m.entries)-n; i-- {
		out = append(out, m.entries[i])
	}
	return out
}

// Last returns the most recent entry.
func (m *Memory) Last() (MemoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return MemoryEntry{}, false
	}
	return m.entries[len(m.entries)-1], true
}

// BySelector returns the entries whose target equals selector, oldest first.
func (m *Memory) BySelector(selector string) []MemoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []MemoryEntry
	for _, e := range m.entries {
		if e.Selector == selector {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) Capacity() int { return m.capacity }

func (m *Memory) Clear() {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
}

// ToJSON encodes the history as an indented JSON array.
func (m *Memory) ToJSON() ([]byte, error) {
	entries := m.All()
	data, err := jsonCodec.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, &schemas.MemoryError{Op: "encode", Err: err}
	}
	return data, nil
}

// MemoryFromJSON restores a history. An import larger than capacity is kept
// whole; the bound applies again on the next Add.
func MemoryFromJSON(data []byte, capacity int) (*Memory, error) {
	var entries []MemoryEntry
	if err := jsonCodec.Unmarshal(data, &entries); err != nil {
		return nil, &schemas.MemoryError{Op: "decode", Err: err}
	}
	for i, e := range entries {
		if err := e.Job.Validate(); err != nil {
			return nil, &schemas.MemoryError{Op: "decode", Err: fmt.Errorf("entry %d: %w", i, err)}
		}
	}
	m := NewMemory(capacity)
	m.entries = entries
	return m, nil
}

// Persist writes the history to path, replacing it atomically.
func (m *Memory) Persist(path string) error {
	data, err := m.ToJSON()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &schemas.MemoryError{Op: "persist", Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return &schemas.MemoryError{Op: "persist", Path: path, Err: err}
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return &schemas.MemoryError{Op: "persist", Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return &schemas.MemoryError{Op: "persist", Path: path, Err: err}
	}
	return nil
}

// LoadMemory reads a history written by Persist. A missing file is a
// MemoryError wrapping fs.ErrNotExist.
func LoadMemory(path string, capacity int) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &schemas.MemoryError{Op: "load", Path: path, Err: err}
	}
	m, err := MemoryFromJSON(data, capacity)
	if err != nil {
		var memErr *schemas.MemoryError
		if errors.As(err, &memErr) {
			memErr.Path = path
		}
		return nil, err
	}
	return m, nil
}

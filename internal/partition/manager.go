// Package partition maps account session ids to isolated on-disk browser
// profiles. A partition outlives the browser processes that use it, so
// cookies persist per account across close and create.
package partition

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

const dirPrefix = "persist-"

// ErrInvalidID is returned for ids that cannot name a partition
var ErrInvalidID = errors.New("invalid partition id")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Partition describes one stored profile
type Partition struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Dir       string    `json:"dir"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Manager owns the partition root directory
type Manager struct {
	root string
	mu   sync.Mutex
}

// NewManager creates a partition manager rooted at root
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create partition directory: %w", err)
	}
	return &Manager{root: root}, nil
}

// Key returns the partition key for a session id
func Key(id string) string {
	return "persist:" + id
}

func (m *Manager) path(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidID
	}
	name := unsafeChars.ReplaceAllString(id, "_")
	if name == "." || name == ".." {
		return "", ErrInvalidID
	}
	return filepath.Join(m.root, dirPrefix+name), nil
}

// Dir ensures and returns the user-data directory of id's partition
func (m *Manager) Dir(id string) (string, error) {
	dir, err := m.path(id)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create partition %s: %w", id, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve partition %s: %w", id, err)
	}
	return abs, nil
}

// Remove wipes id's partition. Unknown ids are a no-op.
func (m *Manager) Remove(id string) error {
	dir, err := m.path(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove partition %s: %w", id, err)
	}
	return nil
}

// List returns every stored partition, sorted by id
func (m *Manager) List() ([]Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions: %w", err)
	}

	var out []Partition
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimPrefix(e.Name(), dirPrefix)
		out = append(out, Partition{
			ID:        id,
			Key:       Key(id),
			Dir:       filepath.Join(m.root, e.Name()),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

package notebook

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Store manages notebook file storage. Notebooks are JSON documents in
// a single directory, one file per notebook.
type Store struct {
	mu      sync.RWMutex
	baseDir string
}

// NewStore creates a store rooted at ~/.hynb/notebooks.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return NewStoreAt(filepath.Join(homeDir, ".hynb", "notebooks"))
}

// NewStoreAt creates a store rooted at dir.
func NewStoreAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create notebooks directory: %w", err)
	}
	return &Store{baseDir: dir}, nil
}

// Save writes a document to disk, assigning an id and timestamps if
// missing.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Metadata.ID == "" {
		doc.Metadata.ID = newNotebookID()
	}
	if doc.Metadata.CreatedAt.IsZero() {
		doc.Metadata.CreatedAt = time.Now()
	}
	doc.Metadata.UpdatedAt = time.Now()
	doc.Metadata.CellCount = len(doc.Cells)

	filePath := filepath.Join(s.baseDir, doc.Metadata.ID+".json")

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notebook: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write notebook file: %w", err)
	}

	return nil
}

// Load reads a document by id. Thinking-role cells are filtered out and
// never come back from disk.
func (s *Store) Load(id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readDocument(filepath.Join(s.baseDir, id+".json"))
}

// List returns all notebook metadata sorted by update time, newest first.
func (s *Store) List() ([]*Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Metadata{}, nil
		}
		return nil, fmt.Errorf("failed to read notebooks directory: %w", err)
	}

	notebooks := make([]*Metadata, 0)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		doc, err := readDocument(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue // Skip invalid notebook files
		}
		notebooks = append(notebooks, &doc.Metadata)
	}

	sort.Slice(notebooks, func(i, j int) bool {
		return notebooks[i].UpdatedAt.After(notebooks[j].UpdatedAt)
	})

	return notebooks, nil
}

// Delete removes a notebook file.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := filepath.Join(s.baseDir, id+".json")
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	return nil
}

// ReadFile loads a notebook document from an arbitrary path (CLI usage).
func ReadFile(path string) (*Document, error) {
	return readDocument(path)
}

// WriteFile saves a notebook document to an arbitrary path (CLI usage).
func WriteFile(path string, doc *Document) error {
	doc.Metadata.UpdatedAt = time.Now()
	doc.Metadata.CellCount = len(doc.Cells)
	doc.Metadata.FilePath = path

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notebook: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write notebook file: %w", err)
	}
	return nil
}

func readDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notebook file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse notebook file: %w", err)
	}

	doc.dropThinking()
	return &doc, nil
}

func newNotebookID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return "nb-" + ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Package memorybank is a file-backed store of project notes, kept adjacent
// to the session database but with an independent lifecycle. Notes are plain
// markdown files in one explicit directory; nothing outside that directory is
// ever read or written.
package memorybank

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a named note does not exist.
var ErrNotFound = errors.New("note not found")

// Note is a single project note.
type Note struct {
	Name     string    `json:"name"`
	Content  string    `json:"content,omitempty"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Bank manages the notes directory.
type Bank struct {
	dir string
}

// New creates a Bank rooted at dir, creating the directory if needed.
func New(dir string) (*Bank, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memorybank: create notes dir: %w", err)
	}
	return &Bank{dir: dir}, nil
}

// Dir returns the notes directory path.
func (b *Bank) Dir() string {
	return b.dir
}

// notePath validates a note name and resolves it inside the notes directory.
// Names must be bare file names; path separators and traversal are rejected.
func (b *Bank) notePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("memorybank: empty note name")
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("memorybank: invalid note name %q", name)
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return filepath.Join(b.dir, name), nil
}

// Write creates or replaces a note.
func (b *Bank) Write(name, content string) error {
	path, err := b.notePath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("memorybank: write note: %w", err)
	}
	return nil
}

// Read returns a note's content, or ErrNotFound.
func (b *Bank) Read(name string) (Note, error) {
	path, err := b.notePath(name)
	if err != nil {
		return Note{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("memorybank: read note: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Note{}, fmt.Errorf("memorybank: stat note: %w", err)
	}
	return Note{
		Name:     filepath.Base(path),
		Content:  string(data),
		Size:     info.Size(),
		Modified: info.ModTime(),
	}, nil
}

// List returns all notes (without content), sorted by name.
func (b *Bank) List() ([]Note, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("memorybank: list notes: %w", err)
	}

	var notes []Note
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		notes = append(notes, Note{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Name < notes[j].Name })
	return notes, nil
}

// Delete removes a note, or returns ErrNotFound.
func (b *Bank) Delete(name string) error {
	path, err := b.notePath(name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("memorybank: delete note: %w", err)
	}
	return nil
}

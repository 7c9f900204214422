package memorybank

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func setupBank(t *testing.T) *Bank {
	t.Helper()
	bank, err := New(filepath.Join(t.TempDir(), "notes"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return bank
}

func TestBank_WriteAndRead(t *testing.T) {
	bank := setupBank(t)

	if err := bank.Write("architecture", "# Architecture\n\nNotes here.\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	note, err := bank.Read("architecture")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if note.Name != "architecture.md" {
		t.Errorf("name: got %q", note.Name)
	}
	if note.Content != "# Architecture\n\nNotes here.\n" {
		t.Errorf("content: got %q", note.Content)
	}
	if note.Size == 0 {
		t.Error("size not recorded")
	}

	// ".md" in the name is accepted as-is.
	note, err = bank.Read("architecture.md")
	if err != nil {
		t.Fatalf("Read with extension: %v", err)
	}
	if note.Name != "architecture.md" {
		t.Errorf("name: got %q", note.Name)
	}
}

func TestBank_Write_Replaces(t *testing.T) {
	bank := setupBank(t)

	bank.Write("n", "first")
	bank.Write("n", "second")

	note, err := bank.Read("n")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if note.Content != "second" {
		t.Errorf("content: got %q", note.Content)
	}
}

func TestBank_Read_NotFound(t *testing.T) {
	bank := setupBank(t)

	if _, err := bank.Read("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBank_RejectsUnsafeNames(t *testing.T) {
	bank := setupBank(t)

	bad := []string{"", "../escape", "a/b", ".hidden", "../../etc/passwd"}
	for _, name := range bad {
		if err := bank.Write(name, "x"); err == nil {
			t.Errorf("Write(%q) should be rejected", name)
		}
		if _, err := bank.Read(name); err == nil {
			t.Errorf("Read(%q) should be rejected", name)
		}
	}
}

func TestBank_List(t *testing.T) {
	bank := setupBank(t)

	bank.Write("beta", "b")
	bank.Write("alpha", "a")

	// Non-markdown files in the directory are ignored.
	os.WriteFile(filepath.Join(bank.Dir(), "stray.txt"), []byte("x"), 0o644)

	notes, err := bank.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(notes))
	}
	if !sort.SliceIsSorted(notes, func(i, j int) bool { return notes[i].Name < notes[j].Name }) {
		t.Error("notes not sorted by name")
	}
	if notes[0].Name != "alpha.md" || notes[1].Name != "beta.md" {
		t.Errorf("names: got %q, %q", notes[0].Name, notes[1].Name)
	}
	if notes[0].Content != "" {
		t.Error("List should not load content")
	}
}

func TestBank_Delete(t *testing.T) {
	bank := setupBank(t)

	bank.Write("n", "x")
	if err := bank.Delete("n"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := bank.Read("n"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := bank.Delete("n"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestBank_Watch_ReportsChanges(t *testing.T) {
	bank := setupBank(t)

	changes := make(chan []string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- bank.Watch(ctx, 50*time.Millisecond, func(names []string) {
			select {
			case changes <- names:
			default:
			}
		})
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	if err := bank.Write("watched", "v1"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case names := <-changes:
		found := false
		for _, n := range names {
			if n == "watched.md" {
				found = true
			}
		}
		if !found {
			t.Errorf("change batch missing watched.md: %v", names)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event within 2s")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBank_Watch_IgnoresNonMarkdown(t *testing.T) {
	bank := setupBank(t)

	changes := make(chan []string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go bank.Watch(ctx, 50*time.Millisecond, func(names []string) {
		select {
		case changes <- names:
		default:
		}
	})

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(bank.Dir(), "scratch.txt"), []byte("x"), 0o644)

	select {
	case names := <-changes:
		t.Errorf("unexpected change event for non-markdown file: %v", names)
	case <-time.After(300 * time.Millisecond):
	}
}

// Package artifact is a content-addressed index of source-code artifacts
// referenced during sessions: file snapshots, code fragments, and symbols
// extracted by per-language analyzers.
package artifact

import "time"

// SymbolType classifies an extracted declaration.
type SymbolType string

const (
	SymbolFunction SymbolType = "function"
	SymbolClass    SymbolType = "class"
	SymbolVariable SymbolType = "variable"
	SymbolImport   SymbolType = "import"
)

// ValidSymbolType returns true if t is a recognised symbol type.
func ValidSymbolType(t SymbolType) bool {
	switch t {
	case SymbolFunction, SymbolClass, SymbolVariable, SymbolImport:
		return true
	}
	return false
}

// FileSnapshot is an immutable capture of a file's text at a point in time.
// Identity is (file_path, content_hash): re-saving identical content resolves
// to the existing snapshot.
type FileSnapshot struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	FilePath    string    `json:"file_path"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language"`
	SizeBytes   int       `json:"size_bytes"`
	Encoding    string    `json:"encoding"`
	CreatedAt   time.Time `json:"created_at"`
}

// SnapshotVersion is one entry of a file's snapshot history.
type SnapshotVersion struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language"`
	SizeBytes   int       `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// CodeSnippet is a fragment of a snapshot, with optional surrounding context.
type CodeSnippet struct {
	ID             string    `json:"id"`
	FileSnapshotID string    `json:"file_snapshot_id"`
	Content        string    `json:"content"`
	Language       string    `json:"language"`
	StartLine      int       `json:"start_line"`
	EndLine        int       `json:"end_line"`
	ContextBefore  string    `json:"context_before,omitempty"`
	ContextAfter   string    `json:"context_after,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CodeSymbol is a named, located declaration extracted from a snapshot.
type CodeSymbol struct {
	ID             string     `json:"id"`
	FileSnapshotID string     `json:"file_snapshot_id"`
	Type           SymbolType `json:"symbol_type"`
	Name           string     `json:"name"`
	FullName       string     `json:"full_name"`
	Signature      string     `json:"signature,omitempty"`
	Docstring      string     `json:"docstring,omitempty"`
	StartLine      int        `json:"start_line"`
	EndLine        int        `json:"end_line"`
	Language       string     `json:"language"`
	ParentSymbolID string     `json:"parent_symbol_id,omitempty"`
	Visibility     string     `json:"visibility,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SymbolHit is a symbol search result annotated with the snapshot's path.
type SymbolHit struct {
	CodeSymbol
	FilePath string `json:"file_path"`
}

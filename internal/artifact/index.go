package artifact

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memloop/memloop/internal/db"
)

// ErrNotFound is returned when a snapshot id does not resolve to a stored row.
var ErrNotFound = errors.New("snapshot not found")

// Index stores and queries code artifacts. Snapshots are content-addressed:
// saving identical (path, content) twice returns the existing id.
type Index struct {
	db        *db.DB
	log       *slog.Logger
	analyzers Registry
}

// NewIndex creates an Index with the default analyzer registry.
func NewIndex(database *db.DB, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		db:        database,
		log:       logger.With("component", "artifact"),
		analyzers: DefaultRegistry(),
	}
}

// RegisterAnalyzer installs (or replaces) the analyzer for a language.
func (ix *Index) RegisterAnalyzer(language string, a Analyzer) {
	ix.analyzers[language] = a
}

// SaveFileSnapshot stores a snapshot of file content. If a snapshot with the
// same (path, content hash) already exists its id is returned and nothing is
// re-analyzed. language may be empty, in which case it is inferred from the
// file extension. Analyzer failures never fail the save.
func (ix *Index) SaveFileSnapshot(sessionID, filePath, content, language string) (string, error) {
	hash := hashContent(content)

	var existing string
	err := ix.db.Conn().QueryRow(
		`SELECT id FROM file_snapshots WHERE file_path = ? AND content_hash = ?`,
		filePath, hash,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("artifact: dedup lookup: %w", err)
	}

	if language == "" {
		language = LanguageForFile(filePath)
	}

	snap := FileSnapshot{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		FilePath:    filePath,
		Content:     content,
		ContentHash: hash,
		Language:    language,
		SizeBytes:   len(content),
		Encoding:    "utf-8",
		CreatedAt:   time.Now(),
	}
	_, err = ix.db.Conn().Exec(`
		INSERT INTO file_snapshots (id, session_id, file_path, content, content_hash, language, size_bytes, encoding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SessionID, snap.FilePath, snap.Content, snap.ContentHash,
		snap.Language, snap.SizeBytes, snap.Encoding, snap.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("artifact: insert snapshot: %w", err)
	}

	ix.analyzeSnapshot(snap)
	return snap.ID, nil
}

// analyzeSnapshot runs the language's analyzer and persists discovered
// symbols. Best-effort: failures are logged and leave the snapshot without
// symbols.
func (ix *Index) analyzeSnapshot(snap FileSnapshot) {
	analyzer, ok := ix.analyzers[snap.Language]
	if !ok {
		return
	}

	raw, err := analyzer.Analyze(snap.Content)
	if err != nil {
		ix.log.Warn("symbol analysis failed", "path", snap.FilePath, "language", snap.Language, "err", err)
		return
	}
	if len(raw) == 0 {
		return
	}

	// Assign ids up front so parent references resolve regardless of
	// declaration order in the source.
	ids := make([]string, len(raw))
	byFullName := make(map[string]string, len(raw))
	for i, sym := range raw {
		ids[i] = uuid.NewString()
		if _, taken := byFullName[sym.FullName]; !taken {
			byFullName[sym.FullName] = ids[i]
		}
	}

	tx, err := ix.db.Conn().Begin()
	if err != nil {
		ix.log.Warn("persist symbols failed", "path", snap.FilePath, "err", err)
		return
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for i, sym := range raw {
		_, err := tx.Exec(`
			INSERT INTO code_symbols (id, file_snapshot_id, symbol_type, name, full_name, signature, docstring, start_line, end_line, language, parent_symbol_id, visibility, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			ids[i], snap.ID, string(sym.Type), sym.Name, sym.FullName, sym.Signature,
			sym.Docstring, sym.StartLine, sym.EndLine, snap.Language, sym.Visibility, now,
		)
		if err != nil {
			ix.log.Warn("persist symbol failed", "path", snap.FilePath, "symbol", sym.FullName, "err", err)
			return
		}
	}

	// Parent links go in a second pass, after every row exists. A method
	// may be declared before its receiver type, so linking during the
	// insert loop would trip the self foreign key.
	for i, sym := range raw {
		if sym.Parent == "" {
			continue
		}
		pid, ok := byFullName[sym.Parent]
		if !ok || pid == ids[i] {
			continue
		}
		if _, err := tx.Exec(
			`UPDATE code_symbols SET parent_symbol_id = ? WHERE id = ?`, pid, ids[i],
		); err != nil {
			ix.log.Warn("link symbol parent failed", "path", snap.FilePath, "symbol", sym.FullName, "err", err)
			return
		}
	}

	if err := tx.Commit(); err != nil {
		ix.log.Warn("persist symbols failed", "path", snap.FilePath, "err", err)
		return
	}

	ix.log.Info("extracted symbols", "path", snap.FilePath, "language", snap.Language, "count", len(raw))
}

// GetSnapshot returns a stored snapshot by id, or ErrNotFound.
func (ix *Index) GetSnapshot(id string) (FileSnapshot, error) {
	var snap FileSnapshot
	var createdAt int64
	err := ix.db.Conn().QueryRow(`
		SELECT id, session_id, file_path, content, content_hash, language, size_bytes, encoding, created_at
		FROM file_snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.SessionID, &snap.FilePath, &snap.Content, &snap.ContentHash,
		&snap.Language, &snap.SizeBytes, &snap.Encoding, &createdAt)
	if err == sql.ErrNoRows {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("artifact: get snapshot: %w", err)
	}
	snap.CreatedAt = time.Unix(0, createdAt)
	return snap, nil
}

// CreateCodeSnippet stores a fragment of an existing snapshot. The snippet
// inherits its language from the parent snapshot. Line bounds are recorded
// as given; they are not validated against the snapshot's line count.
func (ix *Index) CreateCodeSnippet(fileSnapshotID, content string, startLine, endLine int, contextBefore, contextAfter string) (string, error) {
	snap, err := ix.GetSnapshot(fileSnapshotID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	_, err = ix.db.Conn().Exec(`
		INSERT INTO code_snippets (id, file_snapshot_id, content, language, start_line, end_line, context_before, context_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, fileSnapshotID, content, snap.Language, startLine, endLine,
		contextBefore, contextAfter, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("artifact: insert snippet: %w", err)
	}
	return id, nil
}

// GetSnippet returns a stored snippet by id, or ErrNotFound.
func (ix *Index) GetSnippet(id string) (CodeSnippet, error) {
	var sn CodeSnippet
	var createdAt int64
	err := ix.db.Conn().QueryRow(`
		SELECT id, file_snapshot_id, content, language, start_line, end_line, context_before, context_after, created_at
		FROM code_snippets WHERE id = ?`, id,
	).Scan(&sn.ID, &sn.FileSnapshotID, &sn.Content, &sn.Language, &sn.StartLine,
		&sn.EndLine, &sn.ContextBefore, &sn.ContextAfter, &createdAt)
	if err == sql.ErrNoRows {
		return sn, ErrNotFound
	}
	if err != nil {
		return sn, fmt.Errorf("artifact: get snippet: %w", err)
	}
	sn.CreatedAt = time.Unix(0, createdAt)
	return sn, nil
}

// SearchFileContent finds snapshots whose content contains the query
// substring, newest first, capped at limit.
func (ix *Index) SearchFileContent(query string, limit int) ([]FileSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := ix.db.Conn().Query(`
		SELECT id, session_id, file_path, content, content_hash, language, size_bytes, encoding, created_at
		FROM file_snapshots
		WHERE content LIKE ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: search content: %w", err)
	}
	defer rows.Close()

	var out []FileSnapshot
	for rows.Next() {
		var snap FileSnapshot
		var createdAt int64
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.FilePath, &snap.Content,
			&snap.ContentHash, &snap.Language, &snap.SizeBytes, &snap.Encoding, &createdAt); err != nil {
			return nil, err
		}
		snap.CreatedAt = time.Unix(0, createdAt)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// SearchSymbols finds symbols whose name, signature or docstring contains the
// query substring. symbolType and language filters are optional (empty means
// any). Results are ordered newest first, capped at limit.
func (ix *Index) SearchSymbols(query string, symbolType SymbolType, language string, limit int) ([]SymbolHit, error) {
	if limit <= 0 {
		limit = 20
	}

	q := `
		SELECT s.id, s.file_snapshot_id, s.symbol_type, s.name, s.full_name, s.signature, s.docstring,
		       s.start_line, s.end_line, s.language, COALESCE(s.parent_symbol_id, ''), s.visibility, s.created_at,
		       f.file_path
		FROM code_symbols s
		JOIN file_snapshots f ON f.id = s.file_snapshot_id
		WHERE (s.name LIKE ? OR s.signature LIKE ? OR s.docstring LIKE ?)`
	like := "%" + query + "%"
	args := []any{like, like, like}
	if symbolType != "" {
		q += ` AND s.symbol_type = ?`
		args = append(args, string(symbolType))
	}
	if language != "" {
		q += ` AND s.language = ?`
		args = append(args, language)
	}
	q += ` ORDER BY s.created_at DESC, s.rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := ix.db.Conn().Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("artifact: search symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolHit
	for rows.Next() {
		var hit SymbolHit
		var symbolType string
		var createdAt int64
		if err := rows.Scan(&hit.ID, &hit.FileSnapshotID, &symbolType, &hit.Name, &hit.FullName,
			&hit.Signature, &hit.Docstring, &hit.StartLine, &hit.EndLine, &hit.Language,
			&hit.ParentSymbolID, &hit.Visibility, &createdAt, &hit.FilePath); err != nil {
			return nil, err
		}
		hit.Type = SymbolType(symbolType)
		hit.CreatedAt = time.Unix(0, createdAt)
		out = append(out, hit)
	}
	return out, rows.Err()
}

// ListSymbols returns all symbols extracted from a snapshot, in source order.
func (ix *Index) ListSymbols(fileSnapshotID string) ([]CodeSymbol, error) {
	rows, err := ix.db.Conn().Query(`
		SELECT id, file_snapshot_id, symbol_type, name, full_name, signature, docstring,
		       start_line, end_line, language, COALESCE(parent_symbol_id, ''), visibility, created_at
		FROM code_symbols WHERE file_snapshot_id = ?
		ORDER BY start_line ASC, rowid ASC`,
		fileSnapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: list symbols: %w", err)
	}
	defer rows.Close()

	var out []CodeSymbol
	for rows.Next() {
		var sym CodeSymbol
		var symbolType string
		var createdAt int64
		if err := rows.Scan(&sym.ID, &sym.FileSnapshotID, &symbolType, &sym.Name, &sym.FullName,
			&sym.Signature, &sym.Docstring, &sym.StartLine, &sym.EndLine, &sym.Language,
			&sym.ParentSymbolID, &sym.Visibility, &createdAt); err != nil {
			return nil, err
		}
		sym.Type = SymbolType(symbolType)
		sym.CreatedAt = time.Unix(0, createdAt)
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetFileHistory returns all snapshots recorded for a path, newest first.
// Content is not loaded; the history exposes hash and size per version.
func (ix *Index) GetFileHistory(filePath string) ([]SnapshotVersion, error) {
	rows, err := ix.db.Conn().Query(`
		SELECT id, content_hash, language, size_bytes, created_at
		FROM file_snapshots WHERE file_path = ?
		ORDER BY created_at DESC, rowid DESC`,
		filePath,
	)
	if err != nil {
		return nil, fmt.Errorf("artifact: file history: %w", err)
	}
	defer rows.Close()

	var out []SnapshotVersion
	for rows.Next() {
		var v SnapshotVersion
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.ContentHash, &v.Language, &v.SizeBytes, &createdAt); err != nil {
			return nil, err
		}
		v.CreatedAt = time.Unix(0, createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

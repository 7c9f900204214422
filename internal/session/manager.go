package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxMessages is the sliding-window capacity.
	DefaultMaxMessages = 200
	// DefaultCompressionThreshold is how many of the oldest messages one
	// compression pass evicts.
	DefaultCompressionThreshold = 50

	// deleteAfterDays is the fixed retention for archived sessions. Archived
	// sessions idle past this are permanently deleted by the cleanup sweep.
	deleteAfterDays = 90

	// Context projection sizes.
	contextTopMoments     = 20
	contextRecentMessages = 50

	periodTimeLayout = "2006-01-02 15:04"
)

// Manager owns session lifecycle: creation, message ingestion with
// sliding-window compression, key moments, context assembly and retention.
//
// Every read-modify-write of a session happens under a per-session mutex, so
// concurrent writers to the same session cannot break the window bound.
type Manager struct {
	store                *Store
	log                  *slog.Logger
	tokenizer            *Tokenizer
	maxMessages          int
	compressionThreshold int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ManagerConfig tunes a Manager. Zero values fall back to defaults.
type ManagerConfig struct {
	MaxMessages          int
	CompressionThreshold int
	Logger               *slog.Logger
	Tokenizer            *Tokenizer // optional; context token estimate is skipped when nil
}

// NewManager creates a Manager backed by the given store.
func NewManager(store *Store, cfg ManagerConfig) *Manager {
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = DefaultMaxMessages
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = DefaultCompressionThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		store:                store,
		log:                  cfg.Logger.With("component", "session"),
		tokenizer:            cfg.Tokenizer,
		maxMessages:          cfg.MaxMessages,
		compressionThreshold: cfg.CompressionThreshold,
		locks:                make(map[string]*sync.Mutex),
	}
}

// SetTokenizer installs (or replaces) the tokenizer used for context token
// estimates. A nil tokenizer disables the estimate.
func (m *Manager) SetTokenizer(tok *Tokenizer) {
	m.tokenizer = tok
}

// sessionLock returns the mutex guarding a single session's read-modify-write.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[sessionID] = l
	}
	return l
}

// CreateSession creates a new active session for a project and returns its id.
func (m *Manager) CreateSession(projectName string) (string, error) {
	now := time.Now()
	sess := Session{
		ID:          uuid.NewString(),
		ProjectName: projectName,
		CreatedAt:   now,
		LastUsed:    now,
		Status:      StatusActive,
	}
	if err := m.store.InsertSession(sess); err != nil {
		m.log.Error("create session failed", "project", projectName, "err", err)
		return "", fmt.Errorf("create session: %w", err)
	}
	m.log.Info("created session", "session", sess.ID, "project", projectName)
	return sess.ID, nil
}

// GetLatestSession returns the most recently used active session id for a
// project, or ErrNotFound.
func (m *Manager) GetLatestSession(projectName string) (string, error) {
	return m.store.LatestActiveSession(projectName)
}

// GetOrCreateSession resolves a usable session id for a project: the supplied
// id if it names an active session of this project, otherwise the project's
// latest active session, otherwise a freshly created one. A supplied id that
// is unknown, archived, closed or belongs to another project falls through to
// the next step rather than failing.
func (m *Manager) GetOrCreateSession(projectName, sessionID string) (string, error) {
	if sessionID != "" {
		sess, err := m.store.GetSession(sessionID)
		if err == nil && sess.ProjectName == projectName && sess.Status == StatusActive {
			return sessionID, nil
		}
		if err != nil && err != ErrNotFound {
			return "", err
		}
	}
	if id, err := m.store.LatestActiveSession(projectName); err == nil {
		return id, nil
	} else if err != ErrNotFound {
		return "", err
	}
	return m.CreateSession(projectName)
}

// GetSession returns the session row for an id, or ErrNotFound.
func (m *Manager) GetSession(sessionID string) (Session, error) {
	return m.store.GetSession(sessionID)
}

// GetProjectSessions lists all sessions for a project, most recent first.
func (m *Manager) GetProjectSessions(projectName string) ([]SessionInfo, error) {
	return m.store.ListProjectSessions(projectName)
}

// AddMessage appends a message to a session. If the window capacity is
// exceeded the oldest messages are compressed into a summary period before
// the call returns, so len(messages) <= MaxMessages always holds afterwards.
func (m *Manager) AddMessage(sessionID, role, content string, actions, files []string, metadata map[string]string) (Message, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.GetSession(sessionID); err != nil {
		return Message{}, err
	}

	now := time.Now()
	msg := Message{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		CreatedAt:     now,
		Role:          role,
		Content:       content,
		Actions:       actions,
		FilesInvolved: files,
		Metadata:      metadata,
	}
	if err := m.store.InsertMessage(msg); err != nil {
		m.log.Error("add message failed", "session", sessionID, "err", err)
		return Message{}, fmt.Errorf("add message: %w", err)
	}

	// The call reports failure from here on, so the inserted message must
	// not stay behind: a failed compression would otherwise leave the
	// window one over capacity.
	if err := m.compress(sessionID); err != nil {
		m.log.Error("compression failed", "session", sessionID, "err", err)
		m.rollbackMessage(msg.ID)
		return Message{}, fmt.Errorf("compress session: %w", err)
	}

	if err := m.store.TouchSession(sessionID, now); err != nil {
		m.rollbackMessage(msg.ID)
		return Message{}, err
	}
	return msg, nil
}

func (m *Manager) rollbackMessage(id string) {
	if err := m.store.DeleteMessage(id); err != nil {
		m.log.Error("message rollback failed", "message", id, "err", err)
	}
}

// compress evicts the oldest messages into one CompressedPeriod when the
// window capacity is exceeded. No-op when the message count is within bounds.
// Caller must hold the session lock.
func (m *Manager) compress(sessionID string) error {
	count, err := m.store.CountMessages(sessionID)
	if err != nil {
		return err
	}
	if count <= m.maxMessages {
		return nil
	}

	n := m.compressionThreshold
	if n > count {
		n = count
	}
	evicted, err := m.store.OldestMessages(sessionID, n)
	if err != nil {
		return err
	}
	if len(evicted) == 0 {
		return nil
	}

	start := evicted[0].CreatedAt
	end := evicted[len(evicted)-1].CreatedAt

	moments, err := m.store.ListKeyMoments(sessionID)
	if err != nil {
		return err
	}

	period := CompressedPeriod{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		StartTime:       start,
		EndTime:         end,
		Summary:         summarize(evicted),
		KeyAchievements: extractAchievements(evicted),
		FilesInvolved:   distinctFiles(evicted),
		MessageCount:    len(evicted),
		KeyMomentIDs:    linkMoments(moments, evicted, start, end),
	}

	ids := make([]string, len(evicted))
	for i, msg := range evicted {
		ids[i] = msg.ID
	}
	if err := m.store.EvictAndRecord(ids, period); err != nil {
		return err
	}

	m.log.Info("compressed messages", "session", sessionID, "evicted", len(evicted))
	return nil
}

// summarize builds the deterministic templated summary of an evicted batch:
// counts of user and assistant messages plus the distinct actions performed
// (first five, in first-seen order).
func summarize(messages []Message) string {
	var users, assistants int
	var actions []string
	seen := make(map[string]bool)
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			users++
		case "assistant":
			assistants++
		}
		for _, a := range msg.Actions {
			if !seen[a] {
				seen[a] = true
				actions = append(actions, a)
			}
		}
	}

	var parts []string
	if users > 0 {
		parts = append(parts, fmt.Sprintf("Processed %d user requests", users))
	}
	if assistants > 0 {
		parts = append(parts, fmt.Sprintf("Gave %d assistant replies", assistants))
	}
	if len(actions) > 0 {
		if len(actions) > 5 {
			actions = actions[:5]
		}
		parts = append(parts, "Actions performed: "+strings.Join(actions, ", "))
	}
	return strings.Join(parts, "; ")
}

// extractAchievements scans evicted content for achievement keywords and
// buckets matches under completed/created/fixed, capped at ten entries.
func extractAchievements(messages []Message) []string {
	var achievements []string
	add := func(prefix, content string) {
		if len(achievements) < 10 {
			achievements = append(achievements, prefix+clip(content, 100)+"...")
		}
	}
	for _, msg := range messages {
		lower := strings.ToLower(msg.Content)
		if containsAny(lower, []string{"completed", "finished", "done", "success"}) {
			add("Completed: ", msg.Content)
		}
		if containsAny(lower, []string{"created", "added", "implemented"}) {
			add("Created: ", msg.Content)
		}
		if containsAny(lower, []string{"fixed", "resolved", "solved"}) {
			add("Fixed: ", msg.Content)
		}
	}
	return achievements
}

// distinctFiles returns the deduplicated union of the messages' files, in
// first-seen order.
func distinctFiles(messages []Message) []string {
	var files []string
	seen := make(map[string]bool)
	for _, msg := range messages {
		for _, f := range msg.FilesInvolved {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// linkMoments picks the key moments belonging to an evicted batch. Explicit
// linkage wins: a moment whose related_messages intersect the evicted ids is
// attributed to this period. Moments with no related_messages fall back to
// the batch's timestamp range.
func linkMoments(moments []KeyMoment, evicted []Message, start, end time.Time) []string {
	evictedIDs := make(map[string]bool, len(evicted))
	for _, msg := range evicted {
		evictedIDs[msg.ID] = true
	}

	var ids []string
	for _, km := range moments {
		if len(km.RelatedMessages) > 0 {
			for _, mid := range km.RelatedMessages {
				if evictedIDs[mid] {
					ids = append(ids, km.ID)
					break
				}
			}
			continue
		}
		if !km.CreatedAt.Before(start) && !km.CreatedAt.After(end) {
			ids = append(ids, km.ID)
		}
	}
	return ids
}

// MomentInput carries the caller-supplied fields of a new key moment.
type MomentInput struct {
	Type            MomentType
	Title           string
	Summary         string
	Importance      int // 0 → default for the type
	Files           []string
	Context         string
	RelatedMessages []string
	FileSnapshotID  string
	CodeSnippetID   string
}

// AddKeyMoment records a key moment on a session. Missing importance defaults
// from the per-type table. Returns ErrNotFound for an unknown session.
func (m *Manager) AddKeyMoment(sessionID string, in MomentInput) (KeyMoment, error) {
	if !ValidMomentType(in.Type) {
		return KeyMoment{}, fmt.Errorf("invalid moment type %q", in.Type)
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := m.store.GetSession(sessionID); err != nil {
		return KeyMoment{}, err
	}

	importance := in.Importance
	if importance <= 0 {
		importance = DefaultImportance(in.Type)
	}

	now := time.Now()
	km := KeyMoment{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		CreatedAt:       now,
		Type:            in.Type,
		Title:           in.Title,
		Summary:         in.Summary,
		Importance:      importance,
		FilesInvolved:   in.Files,
		Context:         in.Context,
		RelatedMessages: in.RelatedMessages,
		FileSnapshotID:  in.FileSnapshotID,
		CodeSnippetID:   in.CodeSnippetID,
	}
	if err := m.store.InsertKeyMoment(km); err != nil {
		m.log.Error("add key moment failed", "session", sessionID, "err", err)
		return KeyMoment{}, fmt.Errorf("add key moment: %w", err)
	}
	if err := m.store.TouchSession(sessionID, now); err != nil {
		return KeyMoment{}, err
	}

	m.log.Info("added key moment", "session", sessionID, "type", in.Type, "title", in.Title)
	return km, nil
}

// GetSessionContext assembles the read-only projection of a session: the top
// 20 key moments, the 50 most recent messages (oldest first), every compressed
// period with a human-readable time range, and aggregate stats. It never
// mutates state.
func (m *Manager) GetSessionContext(sessionID string) (Context, error) {
	sess, err := m.store.GetSession(sessionID)
	if err != nil {
		return Context{}, err
	}

	moments, err := m.store.TopKeyMoments(sessionID, contextTopMoments)
	if err != nil {
		return Context{}, err
	}
	messages, err := m.store.RecentMessages(sessionID, contextRecentMessages)
	if err != nil {
		return Context{}, err
	}
	periods, err := m.store.ListCompressedPeriods(sessionID)
	if err != nil {
		return Context{}, err
	}

	rendered := make([]RenderedPeriod, 0, len(periods))
	for _, p := range periods {
		rendered = append(rendered, RenderedPeriod{
			Period: fmt.Sprintf("%s - %s",
				p.StartTime.Format(periodTimeLayout), p.EndTime.Format(periodTimeLayout)),
			Summary:      p.Summary,
			Achievements: p.KeyAchievements,
			Files:        p.FilesInvolved,
		})
	}

	totalMessages, err := m.store.CountMessages(sessionID)
	if err != nil {
		return Context{}, err
	}
	totalMoments, err := m.store.CountKeyMoments(sessionID)
	if err != nil {
		return Context{}, err
	}

	ctx := Context{
		SessionID:         sess.ID,
		ProjectName:       sess.ProjectName,
		CreatedAt:         sess.CreatedAt,
		LastUsed:          sess.LastUsed,
		Status:            sess.Status,
		RecentMessages:    messages,
		KeyMoments:        moments,
		CompressedHistory: rendered,
		Metadata:          sess.Metadata,
		Stats: ContextStats{
			TotalMessages:     totalMessages,
			TotalKeyMoments:   totalMoments,
			CompressedPeriods: len(periods),
		},
	}
	if m.tokenizer != nil {
		ctx.Stats.ApproxTokens = m.tokenizer.Count(renderForTokens(ctx))
	}
	return ctx, nil
}

// renderForTokens flattens the textual payload of a context so the tokenizer
// can estimate its prompt cost.
func renderForTokens(ctx Context) string {
	var sb strings.Builder
	for _, msg := range ctx.RecentMessages {
		sb.WriteString(msg.Content)
		sb.WriteByte('\n')
	}
	for _, km := range ctx.KeyMoments {
		sb.WriteString(km.Title)
		sb.WriteByte('\n')
		sb.WriteString(km.Summary)
		sb.WriteByte('\n')
	}
	for _, p := range ctx.CompressedHistory {
		sb.WriteString(p.Summary)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ArchiveSession marks a session archived. Returns ErrNotFound for an unknown id.
func (m *Manager) ArchiveSession(sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.SetSessionStatus(sessionID, StatusArchived, time.Now()); err != nil {
		return err
	}
	m.log.Info("archived session", "session", sessionID)
	return nil
}

// CleanupOldSessions runs the two-phase retention sweep: active sessions idle
// past daysThreshold become archived, and archived sessions idle past the
// fixed 90-day retention are permanently deleted. Returns the counts.
func (m *Manager) CleanupOldSessions(daysThreshold int) (archived, deleted int, err error) {
	now := time.Now()

	archiveCutoff := now.AddDate(0, 0, -daysThreshold)
	archived, err = m.store.ArchiveIdleBefore(archiveCutoff)
	if err != nil {
		return 0, 0, err
	}

	deleteCutoff := now.AddDate(0, 0, -deleteAfterDays)
	deleted, err = m.store.DeleteArchivedBefore(deleteCutoff)
	if err != nil {
		return archived, 0, err
	}

	m.log.Info("cleanup completed", "archived", archived, "deleted", deleted)
	return archived, deleted, nil
}

// GetStats returns aggregate session counts. Pure read, no side effects.
func (m *Manager) GetStats() (Stats, error) {
	return m.store.Stats()
}

// clip truncates s to at most n characters.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

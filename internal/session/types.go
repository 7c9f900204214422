// Package session implements per-project conversational sessions with a
// sliding window of recent messages, deterministic compression of overflow
// into summary periods, and permanently retained key moments.
package session

import "time"

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusClosed   Status = "closed"
)

// ValidStatus returns true if s is a recognised session status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusArchived, StatusClosed:
		return true
	}
	return false
}

// MomentType classifies a key moment.
type MomentType string

const (
	MomentErrorSolved       MomentType = "error_solved"
	MomentFeatureCompleted  MomentType = "feature_completed"
	MomentConfigChanged     MomentType = "config_changed"
	MomentBreakthrough      MomentType = "breakthrough"
	MomentFileCreated       MomentType = "file_created"
	MomentDeployment        MomentType = "deployment"
	MomentImportantDecision MomentType = "important_decision"
	MomentRefactoring       MomentType = "refactoring"
)

// ValidMomentType returns true if t is a recognised moment type.
func ValidMomentType(t MomentType) bool {
	switch t {
	case MomentErrorSolved, MomentFeatureCompleted, MomentConfigChanged,
		MomentBreakthrough, MomentFileCreated, MomentDeployment,
		MomentImportantDecision, MomentRefactoring:
		return true
	}
	return false
}

// momentImportance is the default importance per moment type, used when the
// caller does not supply one.
var momentImportance = map[MomentType]int{
	MomentBreakthrough:      9,
	MomentErrorSolved:       8,
	MomentDeployment:        8,
	MomentFeatureCompleted:  7,
	MomentImportantDecision: 7,
	MomentConfigChanged:     6,
	MomentRefactoring:       6,
	MomentFileCreated:       5,
}

// DefaultImportance returns the default importance for a moment type.
// Unknown types default to 5.
func DefaultImportance(t MomentType) int {
	if v, ok := momentImportance[t]; ok {
		return v
	}
	return 5
}

// Session is a bounded conversational working-set scoped to one project.
type Session struct {
	ID          string            `json:"id"`
	ProjectName string            `json:"project_name"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsed    time.Time         `json:"last_used"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message is a single interaction in a session. Immutable once created.
type Message struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	CreatedAt     time.Time         `json:"created_at"`
	Role          string            `json:"role"` // "user" or "assistant"
	Content       string            `json:"content"`
	Actions       []string          `json:"actions,omitempty"`
	FilesInvolved []string          `json:"files_involved,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// KeyMoment is a curated, importance-ranked highlight. Key moments are never
// evicted by the sliding window.
type KeyMoment struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"session_id"`
	CreatedAt       time.Time  `json:"created_at"`
	Type            MomentType `json:"type"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Importance      int        `json:"importance"` // 1-10
	FilesInvolved   []string   `json:"files_involved,omitempty"`
	Context         string     `json:"context,omitempty"`
	RelatedMessages []string   `json:"related_messages,omitempty"`
	FileSnapshotID  string     `json:"file_snapshot_id,omitempty"`
	CodeSnippetID   string     `json:"code_snippet_id,omitempty"`
}

// CompressedPeriod summarises a batch of messages evicted by compression.
// Produced only by compression; immutable.
type CompressedPeriod struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Summary         string    `json:"summary"`
	KeyAchievements []string  `json:"key_achievements,omitempty"`
	FilesInvolved   []string  `json:"files_involved,omitempty"`
	MessageCount    int       `json:"message_count"`
	KeyMomentIDs    []string  `json:"key_moments,omitempty"`
}

// SessionInfo is the listing row returned for project session queries.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Status    Status    `json:"status"`
}

// Stats summarises what is stored across all sessions.
type Stats struct {
	TotalSessions  int            `json:"total_sessions"`
	UniqueProjects int            `json:"unique_projects"`
	ByStatus       map[Status]int `json:"status_distribution"`
}

// Context is the read-only projection of a session assembled for a caller.
type Context struct {
	SessionID         string            `json:"session_id"`
	ProjectName       string            `json:"project_name"`
	CreatedAt         time.Time         `json:"created_at"`
	LastUsed          time.Time         `json:"last_used"`
	Status            Status            `json:"status"`
	RecentMessages    []Message         `json:"recent_messages"`
	KeyMoments        []KeyMoment       `json:"key_moments"`
	CompressedHistory []RenderedPeriod  `json:"compressed_history"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Stats             ContextStats      `json:"stats"`
}

// RenderedPeriod is a compressed period with its time range rendered for
// human consumption.
type RenderedPeriod struct {
	Period       string   `json:"period"` // "2006-01-02 15:04 - 2006-01-02 15:05"
	Summary      string   `json:"summary"`
	Achievements []string `json:"achievements,omitempty"`
	Files        []string `json:"files,omitempty"`
}

// ContextStats are the aggregate counters attached to a Context.
type ContextStats struct {
	TotalMessages     int `json:"total_messages"`
	TotalKeyMoments   int `json:"total_key_moments"`
	CompressedPeriods int `json:"compressed_periods"`
	ApproxTokens      int `json:"approx_tokens,omitempty"`
}

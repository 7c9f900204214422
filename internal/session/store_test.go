package session

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/memloop/memloop/internal/db"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func insertTestSession(t *testing.T, store *Store, id, project string, lastUsed time.Time) {
	t.Helper()
	err := store.InsertSession(Session{
		ID:          id,
		ProjectName: project,
		CreatedAt:   lastUsed,
		LastUsed:    lastUsed,
		Status:      StatusActive,
	})
	if err != nil {
		t.Fatalf("InsertSession(%s): %v", id, err)
	}
}

func TestStore_InsertAndGetSession(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now()
	sess := Session{
		ID:          "sess-1",
		ProjectName: "myproject",
		CreatedAt:   now,
		LastUsed:    now,
		Status:      StatusActive,
		Metadata:    map[string]string{"origin": "test"},
	}
	if err := store.InsertSession(sess); err != nil {
		t.Fatalf("InsertSession: %v", err)
	}

	got, err := store.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ProjectName != "myproject" {
		t.Errorf("project: got %q", got.ProjectName)
	}
	if got.Status != StatusActive {
		t.Errorf("status: got %q", got.Status)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("created_at: got %v, want %v", got.CreatedAt, now)
	}
	if got.Metadata["origin"] != "test" {
		t.Errorf("metadata: got %v", got.Metadata)
	}
}

func TestStore_GetSession_NotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetSession("nope")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_LatestActiveSession(t *testing.T) {
	store := setupTestDB(t)

	base := time.Now()
	insertTestSession(t, store, "old", "proj", base.Add(-time.Hour))
	insertTestSession(t, store, "new", "proj", base)

	id, err := store.LatestActiveSession("proj")
	if err != nil {
		t.Fatalf("LatestActiveSession: %v", err)
	}
	if id != "new" {
		t.Errorf("expected most recently used session, got %q", id)
	}
}

func TestStore_LatestActiveSession_TieBreaksToLaterInsert(t *testing.T) {
	store := setupTestDB(t)

	same := time.Now()
	insertTestSession(t, store, "first", "proj", same)
	insertTestSession(t, store, "second", "proj", same)

	id, err := store.LatestActiveSession("proj")
	if err != nil {
		t.Fatalf("LatestActiveSession: %v", err)
	}
	if id != "second" {
		t.Errorf("equal last_used should resolve to later insert, got %q", id)
	}
}

func TestStore_LatestActiveSession_IgnoresArchived(t *testing.T) {
	store := setupTestDB(t)

	base := time.Now()
	insertTestSession(t, store, "archived", "proj", base)
	insertTestSession(t, store, "active", "proj", base.Add(-time.Hour))
	if err := store.SetSessionStatus("archived", StatusArchived, base); err != nil {
		t.Fatalf("SetSessionStatus: %v", err)
	}

	id, err := store.LatestActiveSession("proj")
	if err != nil {
		t.Fatalf("LatestActiveSession: %v", err)
	}
	if id != "active" {
		t.Errorf("archived session should be skipped, got %q", id)
	}
}

func TestStore_LatestActiveSession_NoneFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.LatestActiveSession("empty")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_TouchSession_Unknown(t *testing.T) {
	store := setupTestDB(t)

	if err := store.TouchSession("nope", time.Now()); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListProjectSessions_Order(t *testing.T) {
	store := setupTestDB(t)

	base := time.Now()
	insertTestSession(t, store, "a", "proj", base.Add(-2*time.Hour))
	insertTestSession(t, store, "b", "proj", base)
	insertTestSession(t, store, "c", "proj", base.Add(-time.Hour))
	insertTestSession(t, store, "other", "elsewhere", base)

	got, err := store.ListProjectSessions("proj")
	if err != nil {
		t.Fatalf("ListProjectSessions: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(got))
	}
	want := []string{"b", "c", "a"}
	for i, info := range got {
		if info.ID != want[i] {
			t.Errorf("position %d: got %q, want %q", i, info.ID, want[i])
		}
	}
}

func TestStore_Messages_OrderAndRoundTrip(t *testing.T) {
	store := setupTestDB(t)
	insertTestSession(t, store, "s", "proj", time.Now())

	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := Message{
			ID:            fmt.Sprintf("m%d", i),
			SessionID:     "s",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
			Role:          "user",
			Content:       fmt.Sprintf("message %d", i),
			Actions:       []string{"edit"},
			FilesInvolved: []string{"main.go"},
		}
		if err := store.InsertMessage(msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	msgs, err := store.ListMessages("s")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d: got %q", i, msg.ID)
		}
	}
	if msgs[0].Actions[0] != "edit" || msgs[0].FilesInvolved[0] != "main.go" {
		t.Errorf("arrays did not round-trip: %+v", msgs[0])
	}
}

func TestStore_Messages_EqualTimestampsKeepInsertOrder(t *testing.T) {
	store := setupTestDB(t)
	insertTestSession(t, store, "s", "proj", time.Now())

	same := time.Now()
	for i := 0; i < 4; i++ {
		msg := Message{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "s",
			CreatedAt: same,
			Role:      "user",
			Content:   "x",
		}
		if err := store.InsertMessage(msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	msgs, err := store.ListMessages("s")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for i, msg := range msgs {
		if msg.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d: got %q, want m%d", i, msg.ID, i)
		}
	}
}

func TestStore_RecentMessages(t *testing.T) {
	store := setupTestDB(t)
	insertTestSession(t, store, "s", "proj", time.Now())

	base := time.Now()
	for i := 0; i < 10; i++ {
		store.InsertMessage(Message{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "s",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Role:      "user",
			Content:   "x",
		})
	}

	msgs, err := store.RecentMessages("s", 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// The 3 newest, returned oldest first.
	want := []string{"m7", "m8", "m9"}
	for i, msg := range msgs {
		if msg.ID != want[i] {
			t.Errorf("position %d: got %q, want %q", i, msg.ID, want[i])
		}
	}
}

func TestStore_EvictAndRecord_Atomic(t *testing.T) {
	store := setupTestDB(t)
	insertTestSession(t, store, "s", "proj", time.Now())

	base := time.Now()
	for i := 0; i < 6; i++ {
		store.InsertMessage(Message{
			ID:        fmt.Sprintf("m%d", i),
			SessionID: "s",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			Role:      "user",
			Content:   "x",
		})
	}

	period := CompressedPeriod{
		ID:           "p1",
		SessionID:    "s",
		StartTime:    base,
		EndTime:      base.Add(2 * time.Second),
		Summary:      "Processed 3 user requests",
		MessageCount: 3,
	}
	if err := store.EvictAndRecord([]string{"m0", "m1", "m2"}, period); err != nil {
		t.Fatalf("EvictAndRecord: %v", err)
	}

	count, _ := store.CountMessages("s")
	if count != 3 {
		t.Errorf("expected 3 messages after eviction, got %d", count)
	}

	periods, err := store.ListCompressedPeriods("s")
	if err != nil {
		t.Fatalf("ListCompressedPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	if periods[0].MessageCount != 3 {
		t.Errorf("message_count: got %d", periods[0].MessageCount)
	}
	if !periods[0].StartTime.Equal(base) {
		t.Errorf("start_time: got %v, want %v", periods[0].StartTime, base)
	}
}

func TestStore_KeyMoments_Ranking(t *testing.T) {
	store := setupTestDB(t)
	insertTestSession(t, store, "s", "proj", time.Now())

	base := time.Now()
	moments := []KeyMoment{
		{ID: "low", SessionID: "s", CreatedAt: base, Type: MomentRefactoring, Title: "t", Importance: 5},
		{ID: "high", SessionID: "s", CreatedAt: base.Add(-time.Hour), Type: MomentBreakthrough, Title: "t", Importance: 9},
		{ID: "mid-old", SessionID: "s", CreatedAt: base.Add(-2 * time.Hour), Type: MomentErrorSolved, Title: "t", Importance: 8},
		{ID: "mid-new", SessionID: "s", CreatedAt: base, Type: MomentErrorSolved, Title: "t", Importance: 8},
	}
	for _, km := range moments {
		if err := store.InsertKeyMoment(km); err != nil {
			t.Fatalf("InsertKeyMoment(%s): %v", km.ID, err)
		}
	}

	got, err := store.ListKeyMoments("s")
	if err != nil {
		t.Fatalf("ListKeyMoments: %v", err)
	}
	want := []string{"high", "mid-new", "mid-old", "low"}
	if len(got) != len(want) {
		t.Fatalf("expected %d moments, got %d", len(want), len(got))
	}
	for i, km := range got {
		if km.ID != want[i] {
			t.Errorf("position %d: got %q, want %q", i, km.ID, want[i])
		}
	}

	top, err := store.TopKeyMoments("s", 2)
	if err != nil {
		t.Fatalf("TopKeyMoments: %v", err)
	}
	if len(top) != 2 || top[0].ID != "high" || top[1].ID != "mid-new" {
		t.Errorf("top 2: got %+v", top)
	}
}

func TestStore_ArchiveAndDeleteCutoffs(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now()
	insertTestSession(t, store, "stale", "proj", now.AddDate(0, 0, -40))
	insertTestSession(t, store, "fresh", "proj", now)

	archived, err := store.ArchiveIdleBefore(now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("ArchiveIdleBefore: %v", err)
	}
	if archived != 1 {
		t.Errorf("expected 1 archived, got %d", archived)
	}

	got, _ := store.GetSession("stale")
	if got.Status != StatusArchived {
		t.Errorf("stale session status: got %q", got.Status)
	}
	got, _ = store.GetSession("fresh")
	if got.Status != StatusActive {
		t.Errorf("fresh session status: got %q", got.Status)
	}

	// 40 days idle is past the archive cutoff but not the 90-day delete cutoff.
	deleted, err := store.DeleteArchivedBefore(now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("DeleteArchivedBefore: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted, got %d", deleted)
	}

	insertTestSession(t, store, "ancient", "proj", now.AddDate(0, 0, -120))
	store.SetSessionStatus("ancient", StatusArchived, now.AddDate(0, 0, -120))

	deleted, err = store.DeleteArchivedBefore(now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("DeleteArchivedBefore: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if _, err := store.GetSession("ancient"); err != ErrNotFound {
		t.Errorf("expected ancient session gone, got %v", err)
	}
}

func TestStore_Stats(t *testing.T) {
	store := setupTestDB(t)

	now := time.Now()
	insertTestSession(t, store, "a", "proj1", now)
	insertTestSession(t, store, "b", "proj1", now)
	insertTestSession(t, store, "c", "proj2", now)
	store.SetSessionStatus("c", StatusArchived, now)

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSessions != 3 {
		t.Errorf("total: got %d", stats.TotalSessions)
	}
	if stats.UniqueProjects != 2 {
		t.Errorf("projects: got %d", stats.UniqueProjects)
	}
	if stats.ByStatus[StatusActive] != 2 || stats.ByStatus[StatusArchived] != 1 {
		t.Errorf("by status: got %v", stats.ByStatus)
	}
}

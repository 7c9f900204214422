package session

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func setupManager(t *testing.T, maxMessages, threshold int) (*Manager, *Store) {
	t.Helper()
	store := setupTestDB(t)
	m := NewManager(store, ManagerConfig{
		MaxMessages:          maxMessages,
		CompressionThreshold: threshold,
	})
	return m, store
}

func TestManager_CreateAndGetSession(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	id, err := m.CreateSession("proj")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty session id")
	}

	sess, err := m.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.ProjectName != "proj" || sess.Status != StatusActive {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestManager_GetOrCreateSession(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	// No sessions yet: creates one.
	id1, err := m.GetOrCreateSession("proj", "")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}

	// Existing preferred id wins.
	id2, err := m.GetOrCreateSession("proj", id1)
	if err != nil {
		t.Fatalf("GetOrCreateSession with id: %v", err)
	}
	if id2 != id1 {
		t.Errorf("expected preferred id %q, got %q", id1, id2)
	}

	// Unknown preferred id falls back to the latest active session.
	id3, err := m.GetOrCreateSession("proj", "does-not-exist")
	if err != nil {
		t.Fatalf("GetOrCreateSession with bad id: %v", err)
	}
	if id3 != id1 {
		t.Errorf("expected fallback to %q, got %q", id1, id3)
	}
}

func TestManager_GetOrCreateSession_RejectsForeignAndInactiveIDs(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	other, _ := m.CreateSession("other-proj")

	// An id belonging to another project is not honored; with no session of
	// its own yet, the project gets a fresh one.
	id, err := m.GetOrCreateSession("proj", other)
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if id == other {
		t.Fatal("session of another project must not be honored")
	}

	// An archived id of the same project falls back to the latest active one.
	archived, _ := m.CreateSession("proj")
	if err := m.ArchiveSession(archived); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	got, err := m.GetOrCreateSession("proj", archived)
	if err != nil {
		t.Fatalf("GetOrCreateSession with archived id: %v", err)
	}
	if got == archived {
		t.Error("archived session must not be honored")
	}
	if got != id {
		t.Errorf("expected fallback to active session %q, got %q", id, got)
	}
}

func TestManager_AddMessage_UnknownSession(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	_, err := m.AddMessage("nope", "user", "hi", nil, nil, nil)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_AddMessage_TouchesSession(t *testing.T) {
	m, store := setupManager(t, 0, 0)

	id, _ := m.CreateSession("proj")
	before, _ := store.GetSession(id)

	time.Sleep(2 * time.Millisecond)
	if _, err := m.AddMessage(id, "user", "hello", nil, nil, nil); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	after, _ := store.GetSession(id)
	if !after.LastUsed.After(before.LastUsed) {
		t.Errorf("last_used not advanced: %v then %v", before.LastUsed, after.LastUsed)
	}
}

func TestManager_AddMessage_RollsBackOnCompressFailure(t *testing.T) {
	m, store := setupManager(t, 2, 1)

	id, _ := m.CreateSession("proj")
	for i := 0; i < 2; i++ {
		if _, err := m.AddMessage(id, "user", fmt.Sprintf("message %d", i), nil, nil, nil); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	// A key moment row with a non-numeric timestamp makes the compression
	// read fail after the next message is inserted.
	if _, err := store.Conn().Exec(`
		INSERT INTO key_moments (id, session_id, created_at, moment_type, title, summary, importance)
		VALUES ('km-bad', ?, 'not-a-timestamp', 'breakthrough', 't', 's', 9)`, id,
	); err != nil {
		t.Fatalf("insert corrupt moment: %v", err)
	}

	_, err := m.AddMessage(id, "user", "message 2", nil, nil, nil)
	if err == nil {
		t.Fatal("expected AddMessage to fail when compression fails")
	}

	// The failed call must not leave its message behind: the window would
	// sit over capacity with no compressed period to account for it.
	count, _ := store.CountMessages(id)
	if count != 2 {
		t.Errorf("message count after failed add: got %d, want 2", count)
	}
	periods, _ := store.CountCompressedPeriods(id)
	if periods != 0 {
		t.Errorf("expected no compressed periods, got %d", periods)
	}
}

func TestManager_WindowBoundHolds(t *testing.T) {
	const maxMessages, threshold = 10, 5
	m, store := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")
	for i := 0; i < 40; i++ {
		if _, err := m.AddMessage(id, "user", fmt.Sprintf("message %d", i), nil, nil, nil); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
		count, err := store.CountMessages(id)
		if err != nil {
			t.Fatalf("CountMessages: %v", err)
		}
		if count > maxMessages {
			t.Fatalf("after message %d: window bound broken, %d > %d", i, count, maxMessages)
		}
	}
}

func TestManager_CompressionAccounting(t *testing.T) {
	// 17 messages through a window of 10 with threshold 5: two compression
	// passes evict 5 messages each, leaving 7 live and 2 periods. Every
	// message is accounted for exactly once.
	const maxMessages, threshold = 10, 5
	m, store := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")
	for i := 0; i < 17; i++ {
		if _, err := m.AddMessage(id, "user", fmt.Sprintf("message %d", i), nil, nil, nil); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	live, err := store.CountMessages(id)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if live != 7 {
		t.Errorf("expected 7 live messages, got %d", live)
	}

	periods, err := store.ListCompressedPeriods(id)
	if err != nil {
		t.Fatalf("ListCompressedPeriods: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("expected 2 compressed periods, got %d", len(periods))
	}

	compressed := 0
	for _, p := range periods {
		compressed += p.MessageCount
	}
	if live+compressed != 17 {
		t.Errorf("message accounting broken: %d live + %d compressed != 17", live, compressed)
	}

	// Oldest messages went first: the survivors are the newest 7.
	msgs, _ := store.ListMessages(id)
	if msgs[0].Content != "message 10" {
		t.Errorf("oldest surviving message: got %q, want %q", msgs[0].Content, "message 10")
	}
}

func TestManager_CompressedPeriodSummary(t *testing.T) {
	const maxMessages, threshold = 4, 2
	m, store := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")
	m.AddMessage(id, "user", "please fix the login bug", []string{"read_file"}, []string{"login.go"}, nil)
	m.AddMessage(id, "assistant", "fixed the nil check in login.go", []string{"edit_file"}, []string{"login.go"}, nil)
	for i := 0; i < 3; i++ {
		m.AddMessage(id, "user", "more work", nil, nil, nil)
	}

	periods, err := store.ListCompressedPeriods(id)
	if err != nil {
		t.Fatalf("ListCompressedPeriods: %v", err)
	}
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}

	p := periods[0]
	if !strings.Contains(p.Summary, "1 user request") {
		t.Errorf("summary missing user count: %q", p.Summary)
	}
	if !strings.Contains(p.Summary, "1 assistant repl") {
		t.Errorf("summary missing assistant count: %q", p.Summary)
	}
	if !strings.Contains(p.Summary, "read_file") || !strings.Contains(p.Summary, "edit_file") {
		t.Errorf("summary missing actions: %q", p.Summary)
	}
	if len(p.FilesInvolved) != 1 || p.FilesInvolved[0] != "login.go" {
		t.Errorf("files: got %v", p.FilesInvolved)
	}
	found := false
	for _, a := range p.KeyAchievements {
		if strings.HasPrefix(a, "Fixed: ") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Fixed achievement, got %v", p.KeyAchievements)
	}
}

func TestManager_KeyMomentsSurviveCompression(t *testing.T) {
	const maxMessages, threshold = 4, 2
	m, store := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")

	msg, err := m.AddMessage(id, "assistant", "solved the crash", nil, nil, nil)
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	km, err := m.AddKeyMoment(id, MomentInput{
		Type:            MomentErrorSolved,
		Title:           "Crash fixed",
		Summary:         "solved the crash",
		RelatedMessages: []string{msg.ID},
	})
	if err != nil {
		t.Fatalf("AddKeyMoment: %v", err)
	}

	// Push the original message out of the window.
	for i := 0; i < 8; i++ {
		m.AddMessage(id, "user", "filler", nil, nil, nil)
	}

	moments, err := store.ListKeyMoments(id)
	if err != nil {
		t.Fatalf("ListKeyMoments: %v", err)
	}
	if len(moments) != 1 || moments[0].ID != km.ID {
		t.Fatalf("key moment lost after compression: %+v", moments)
	}

	// The evicting period records the moment it covers.
	periods, _ := store.ListCompressedPeriods(id)
	if len(periods) == 0 {
		t.Fatal("expected at least one compressed period")
	}
	linked := false
	for _, p := range periods {
		for _, mid := range p.KeyMomentIDs {
			if mid == km.ID {
				linked = true
			}
		}
	}
	if !linked {
		t.Error("compressed period does not reference the evicted message's key moment")
	}
}

func TestManager_AddKeyMoment_DefaultImportance(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	id, _ := m.CreateSession("proj")

	km, err := m.AddKeyMoment(id, MomentInput{
		Type:    MomentBreakthrough,
		Title:   "It works",
		Summary: "finally",
	})
	if err != nil {
		t.Fatalf("AddKeyMoment: %v", err)
	}
	if km.Importance != 9 {
		t.Errorf("breakthrough importance: got %d, want 9", km.Importance)
	}

	km, err = m.AddKeyMoment(id, MomentInput{
		Type:       MomentRefactoring,
		Title:      "Cleanup",
		Summary:    "tidy",
		Importance: 3,
	})
	if err != nil {
		t.Fatalf("AddKeyMoment: %v", err)
	}
	if km.Importance != 3 {
		t.Errorf("explicit importance: got %d, want 3", km.Importance)
	}
}

func TestManager_AddKeyMoment_InvalidType(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	id, _ := m.CreateSession("proj")
	_, err := m.AddKeyMoment(id, MomentInput{Type: "nonsense", Title: "t", Summary: "s"})
	if err == nil {
		t.Error("expected error for invalid moment type")
	}
}

func TestManager_GetSessionContext(t *testing.T) {
	const maxMessages, threshold = 6, 3
	m, _ := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")
	for i := 0; i < 9; i++ {
		m.AddMessage(id, "user", fmt.Sprintf("message %d", i), nil, nil, nil)
	}
	m.AddKeyMoment(id, MomentInput{Type: MomentDeployment, Title: "Shipped", Summary: "v1 out"})

	ctx, err := m.GetSessionContext(id)
	if err != nil {
		t.Fatalf("GetSessionContext: %v", err)
	}
	if ctx.SessionID != id || ctx.ProjectName != "proj" {
		t.Errorf("identity fields: %+v", ctx)
	}
	if ctx.Stats.TotalMessages != 6 {
		t.Errorf("total messages: got %d, want 6", ctx.Stats.TotalMessages)
	}
	if ctx.Stats.CompressedPeriods != 1 || len(ctx.CompressedHistory) != 1 {
		t.Errorf("periods: stats=%d rendered=%d", ctx.Stats.CompressedPeriods, len(ctx.CompressedHistory))
	}
	if ctx.Stats.TotalKeyMoments != 1 || len(ctx.KeyMoments) != 1 {
		t.Errorf("moments: stats=%d got=%d", ctx.Stats.TotalKeyMoments, len(ctx.KeyMoments))
	}
	if len(ctx.RecentMessages) != 6 {
		t.Errorf("recent messages: got %d", len(ctx.RecentMessages))
	}
	// Oldest first.
	if ctx.RecentMessages[0].Content != "message 3" {
		t.Errorf("first recent message: got %q", ctx.RecentMessages[0].Content)
	}
	if !strings.Contains(ctx.CompressedHistory[0].Period, " - ") {
		t.Errorf("rendered period range: %q", ctx.CompressedHistory[0].Period)
	}
}

func TestManager_GetSessionContext_NotFound(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	_, err := m.GetSessionContext("nope")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_ArchiveSession(t *testing.T) {
	m, _ := setupManager(t, 0, 0)

	id, _ := m.CreateSession("proj")
	if err := m.ArchiveSession(id); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}

	sess, _ := m.GetSession(id)
	if sess.Status != StatusArchived {
		t.Errorf("status: got %q", sess.Status)
	}

	if err := m.ArchiveSession("nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m, store := setupManager(t, 0, 0)

	now := time.Now()
	insertTestSession(t, store, "idle", "proj", now.AddDate(0, 0, -40))
	insertTestSession(t, store, "busy", "proj", now)
	insertTestSession(t, store, "ancient", "proj", now.AddDate(0, 0, -120))
	store.SetSessionStatus("ancient", StatusArchived, now.AddDate(0, 0, -120))

	archived, deleted, err := m.CleanupOldSessions(30)
	if err != nil {
		t.Fatalf("CleanupOldSessions: %v", err)
	}
	if archived != 1 {
		t.Errorf("archived: got %d, want 1", archived)
	}
	if deleted != 1 {
		t.Errorf("deleted: got %d, want 1", deleted)
	}

	if sess, _ := store.GetSession("idle"); sess.Status != StatusArchived {
		t.Errorf("idle session status: got %q", sess.Status)
	}
	if sess, _ := store.GetSession("busy"); sess.Status != StatusActive {
		t.Errorf("busy session status: got %q", sess.Status)
	}
	if _, err := store.GetSession("ancient"); err != ErrNotFound {
		t.Errorf("ancient session should be deleted, got %v", err)
	}
}

func TestManager_ConcurrentAddMessage(t *testing.T) {
	const maxMessages, threshold = 10, 5
	m, store := setupManager(t, maxMessages, threshold)

	id, _ := m.CreateSession("proj")

	done := make(chan error)
	for g := 0; g < 4; g++ {
		go func(g int) {
			for i := 0; i < 10; i++ {
				if _, err := m.AddMessage(id, "user", fmt.Sprintf("g%d m%d", g, i), nil, nil, nil); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(g)
	}
	for g := 0; g < 4; g++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent AddMessage: %v", err)
		}
	}

	count, err := store.CountMessages(id)
	if err != nil {
		t.Fatalf("CountMessages: %v", err)
	}
	if count > maxMessages {
		t.Errorf("window bound broken under concurrency: %d > %d", count, maxMessages)
	}

	live := count
	periods, _ := store.ListCompressedPeriods(id)
	for _, p := range periods {
		live += p.MessageCount
	}
	if live != 40 {
		t.Errorf("message accounting broken: %d accounted, want 40", live)
	}
}

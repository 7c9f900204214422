package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/memloop/memloop/internal/artifact"
	"github.com/memloop/memloop/internal/memorybank"
	"github.com/memloop/memloop/internal/session"
)

// jsonResult marshals v as an indented JSON tool result.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

func (s *Server) handleCreateSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project_name"), nil
	}

	id, createErr := s.manager.CreateSession(project)
	if createErr != nil {
		return mcp.NewToolResultError("failed to create session"), nil
	}
	return jsonResult(map[string]string{"session_id": id, "project_name": project}), nil
}

func (s *Server) handleGetOrCreateSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project_name"), nil
	}
	preferred := req.GetString("session_id", "")

	id, resolveErr := s.manager.GetOrCreateSession(project, preferred)
	if resolveErr != nil {
		return mcp.NewToolResultError("failed to resolve session"), nil
	}
	return jsonResult(map[string]string{"session_id": id, "project_name": project}), nil
}

func (s *Server) handleAddMessage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	role, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: role"), nil
	}
	if role != "user" && role != "assistant" {
		return mcp.NewToolResultError(fmt.Sprintf("invalid role %q (valid: user, assistant)", role)), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	actions := req.GetStringSlice("actions", nil)
	files := req.GetStringSlice("files", nil)
	detect := req.GetBool("detect_moments", true)

	msg, addErr := s.manager.AddMessage(sessionID, role, content, actions, files, nil)
	if addErr == session.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", sessionID)), nil
	}
	if addErr != nil {
		return mcp.NewToolResultError("failed to add message"), nil
	}

	// Best-effort auto-detection: a failed moment insert never fails the add.
	detected := 0
	if detect {
		for _, cand := range session.DetectKeyMoments(content, actions, files) {
			_, momentErr := s.manager.AddKeyMoment(sessionID, session.MomentInput{
				Type:            cand.Type,
				Title:           cand.Title,
				Summary:         cand.Summary,
				Files:           files,
				RelatedMessages: []string{msg.ID},
			})
			if momentErr != nil {
				s.log.Warn("auto key moment failed", "session", sessionID, "type", cand.Type, "err", momentErr)
				continue
			}
			detected++
		}
	}

	return jsonResult(map[string]any{
		"message_id":       msg.ID,
		"detected_moments": detected,
	}), nil
}

func (s *Server) handleAddKeyMoment(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	momentType, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: type"), nil
	}
	if !session.ValidMomentType(session.MomentType(momentType)) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid moment type %q", momentType)), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}
	summary, err := req.RequireString("summary")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: summary"), nil
	}

	km, addErr := s.manager.AddKeyMoment(sessionID, session.MomentInput{
		Type:            session.MomentType(momentType),
		Title:           title,
		Summary:         summary,
		Importance:      req.GetInt("importance", 0),
		Files:           req.GetStringSlice("files", nil),
		Context:         req.GetString("context", ""),
		RelatedMessages: req.GetStringSlice("related_messages", nil),
	})
	if addErr == session.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", sessionID)), nil
	}
	if addErr != nil {
		return mcp.NewToolResultError("failed to add key moment"), nil
	}
	return jsonResult(map[string]any{"moment_id": km.ID, "importance": km.Importance}), nil
}

func (s *Server) handleGetSessionContext(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	ctx, getErr := s.manager.GetSessionContext(sessionID)
	if getErr == session.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", sessionID)), nil
	}
	if getErr != nil {
		return mcp.NewToolResultError("failed to assemble session context"), nil
	}
	return jsonResult(ctx), nil
}

func (s *Server) handleGetProjectSessions(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := req.RequireString("project_name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project_name"), nil
	}

	sessions, listErr := s.manager.GetProjectSessions(project)
	if listErr != nil {
		return mcp.NewToolResultError("failed to list sessions"), nil
	}
	return jsonResult(sessions), nil
}

func (s *Server) handleArchiveSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}

	archiveErr := s.manager.ArchiveSession(sessionID)
	if archiveErr == session.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", sessionID)), nil
	}
	if archiveErr != nil {
		return mcp.NewToolResultError("failed to archive session"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s archived.", sessionID)), nil
}

func (s *Server) handleCleanup(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := req.GetInt("days_threshold", 30)

	archived, deleted, err := s.manager.CleanupOldSessions(days)
	if err != nil {
		return mcp.NewToolResultError("cleanup failed"), nil
	}
	return jsonResult(map[string]int{"archived": archived, "deleted": deleted}), nil
}

func (s *Server) handleGetStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.manager.GetStats()
	if err != nil {
		return mcp.NewToolResultError("failed to read stats"), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) handleSaveFileSnapshot(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: session_id"), nil
	}
	filePath, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: file_path"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	language := req.GetString("language", "")

	id, saveErr := s.index.SaveFileSnapshot(sessionID, filePath, content, language)
	if saveErr != nil {
		return mcp.NewToolResultError("failed to save snapshot"), nil
	}
	return jsonResult(map[string]string{"snapshot_id": id}), nil
}

func (s *Server) handleCreateCodeSnippet(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshotID, err := req.RequireString("file_snapshot_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: file_snapshot_id"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}
	startLine := req.GetInt("start_line", 0)
	endLine := req.GetInt("end_line", 0)

	id, createErr := s.index.CreateCodeSnippet(snapshotID, content, startLine, endLine,
		req.GetString("context_before", ""), req.GetString("context_after", ""))
	if createErr == artifact.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot %q not found", snapshotID)), nil
	}
	if createErr != nil {
		return mcp.NewToolResultError("failed to create snippet"), nil
	}
	return jsonResult(map[string]string{"snippet_id": id}), nil
}

func (s *Server) handleSearchSymbols(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	symbolType := req.GetString("symbol_type", "")
	if symbolType != "" && !artifact.ValidSymbolType(artifact.SymbolType(symbolType)) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid symbol type %q (valid: function, class, variable, import)", symbolType)), nil
	}

	hits, searchErr := s.index.SearchSymbols(query, artifact.SymbolType(symbolType),
		req.GetString("language", ""), req.GetInt("limit", 20))
	if searchErr != nil {
		return mcp.NewToolResultError("symbol search failed"), nil
	}
	return jsonResult(hits), nil
}

func (s *Server) handleSearchFileContent(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	snaps, searchErr := s.index.SearchFileContent(query, req.GetInt("limit", 10))
	if searchErr != nil {
		return mcp.NewToolResultError("content search failed"), nil
	}

	// Strip full content from results; callers fetch bodies via history ids.
	type hit struct {
		ID        string `json:"id"`
		FilePath  string `json:"file_path"`
		Language  string `json:"language"`
		SizeBytes int    `json:"size_bytes"`
	}
	hits := make([]hit, 0, len(snaps))
	for _, sn := range snaps {
		hits = append(hits, hit{ID: sn.ID, FilePath: sn.FilePath, Language: sn.Language, SizeBytes: sn.SizeBytes})
	}
	return jsonResult(hits), nil
}

func (s *Server) handleGetFileHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filePath, err := req.RequireString("file_path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: file_path"), nil
	}

	versions, histErr := s.index.GetFileHistory(filePath)
	if histErr != nil {
		return mcp.NewToolResultError("failed to read file history"), nil
	}
	return jsonResult(versions), nil
}

func (s *Server) handleWriteNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: content"), nil
	}

	if writeErr := s.bank.Write(name, content); writeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to write note: %v", writeErr)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Note %s saved.", name)), nil
}

func (s *Server) handleReadNote(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: name"), nil
	}

	note, readErr := s.bank.Read(name)
	if readErr == memorybank.ErrNotFound {
		return mcp.NewToolResultError(fmt.Sprintf("note %q not found", name)), nil
	}
	if readErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read note: %v", readErr)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) handleListNotes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.bank.List()
	if err != nil {
		return mcp.NewToolResultError("failed to list notes"), nil
	}
	return jsonResult(notes), nil
}

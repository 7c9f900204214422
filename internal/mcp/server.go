// Package mcp exposes session memory operations as MCP tools over stdio, for
// AI assistants to call. This is the tool plumbing the request layer talks
// to; request shaping and auth live with the caller.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/memloop/memloop/internal/artifact"
	"github.com/memloop/memloop/internal/memorybank"
	"github.com/memloop/memloop/internal/session"
)

// Server wires the session manager, artifact index and memory bank into an
// MCP stdio server.
type Server struct {
	manager *session.Manager
	index   *artifact.Index
	bank    *memorybank.Bank
	log     *slog.Logger
	mcp     *server.MCPServer
}

// NewServer creates a Server and registers all tools.
func NewServer(manager *session.Manager, index *artifact.Index, bank *memorybank.Bank, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		manager: manager,
		index:   index,
		bank:    bank,
		log:     logger.With("component", "mcp"),
		mcp:     server.NewMCPServer("memloop", version),
	}
	s.registerTools()
	return s
}

// Serve runs the stdio loop until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new active session for a project"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Project the session belongs to")),
	), s.handleCreateSession)

	s.mcp.AddTool(mcp.NewTool("get_or_create_session",
		mcp.WithDescription("Resolve a usable session: the given id if it exists, else the project's latest active session, else a new one"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Project the session belongs to")),
		mcp.WithString("session_id", mcp.Description("Preferred session id, if the caller has one")),
	), s.handleGetOrCreateSession)

	s.mcp.AddTool(mcp.NewTool("add_message",
		mcp.WithDescription("Append a message to a session; overflow beyond the window capacity is compressed automatically. Key moments are auto-detected from the content unless disabled."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
		mcp.WithString("role", mcp.Required(), mcp.Description("user or assistant")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Message text")),
		mcp.WithArray("actions", mcp.Description("Actions performed"), mcp.WithStringItems()),
		mcp.WithArray("files", mcp.Description("Files involved"), mcp.WithStringItems()),
		mcp.WithBoolean("detect_moments", mcp.Description("Auto-detect key moments from the content (default true)")),
	), s.handleAddMessage)

	s.mcp.AddTool(mcp.NewTool("add_key_moment",
		mcp.WithDescription("Record a key moment on a session; key moments are never evicted"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
		mcp.WithString("type", mcp.Required(), mcp.Description("error_solved, feature_completed, config_changed, breakthrough, file_created, deployment, important_decision or refactoring")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("What happened")),
		mcp.WithNumber("importance", mcp.Description("1-10; defaults per type when omitted")),
		mcp.WithArray("files", mcp.Description("Files involved"), mcp.WithStringItems()),
		mcp.WithString("context", mcp.Description("Surrounding context")),
		mcp.WithArray("related_messages", mcp.Description("Ids of the messages this moment refers to"), mcp.WithStringItems()),
	), s.handleAddKeyMoment)

	s.mcp.AddTool(mcp.NewTool("get_session_context",
		mcp.WithDescription("Assemble the read-only context of a session: top key moments, recent messages, compressed history and stats"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
	), s.handleGetSessionContext)

	s.mcp.AddTool(mcp.NewTool("get_project_sessions",
		mcp.WithDescription("List all sessions of a project, most recently used first"),
		mcp.WithString("project_name", mcp.Required(), mcp.Description("Project name")),
	), s.handleGetProjectSessions)

	s.mcp.AddTool(mcp.NewTool("archive_session",
		mcp.WithDescription("Mark a session archived"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Target session id")),
	), s.handleArchiveSession)

	s.mcp.AddTool(mcp.NewTool("cleanup_old_sessions",
		mcp.WithDescription("Archive idle sessions and delete long-archived ones"),
		mcp.WithNumber("days_threshold", mcp.Description("Idle days before an active session is archived (default 30)")),
	), s.handleCleanup)

	s.mcp.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Session counts by status, distinct projects, total"),
	), s.handleGetStats)

	s.mcp.AddTool(mcp.NewTool("save_file_snapshot",
		mcp.WithDescription("Store a content-addressed snapshot of a file; identical content is deduplicated and code symbols are extracted"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session the snapshot was taken in")),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path of the file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
		mcp.WithString("language", mcp.Description("Language override; inferred from the extension when omitted")),
	), s.handleSaveFileSnapshot)

	s.mcp.AddTool(mcp.NewTool("create_code_snippet",
		mcp.WithDescription("Store a code fragment referencing an existing file snapshot"),
		mcp.WithString("file_snapshot_id", mcp.Required(), mcp.Description("Parent snapshot id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Fragment text")),
		mcp.WithNumber("start_line", mcp.Required(), mcp.Description("First line of the fragment")),
		mcp.WithNumber("end_line", mcp.Required(), mcp.Description("Last line of the fragment")),
		mcp.WithString("context_before", mcp.Description("Lines preceding the fragment")),
		mcp.WithString("context_after", mcp.Description("Lines following the fragment")),
	), s.handleCreateCodeSnippet)

	s.mcp.AddTool(mcp.NewTool("search_symbols",
		mcp.WithDescription("Search extracted code symbols by substring over name, signature and docstring"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to match")),
		mcp.WithString("symbol_type", mcp.Description("function, class, variable or import")),
		mcp.WithString("language", mcp.Description("Restrict to one language")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.handleSearchSymbols)

	s.mcp.AddTool(mcp.NewTool("search_file_content",
		mcp.WithDescription("Search stored file snapshots by content substring, newest first"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Substring to match")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), s.handleSearchFileContent)

	s.mcp.AddTool(mcp.NewTool("get_file_history",
		mcp.WithDescription("List all snapshots recorded for a path, newest first, with hash and size"),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path of the file")),
	), s.handleGetFileHistory)

	s.mcp.AddTool(mcp.NewTool("write_note",
		mcp.WithDescription("Create or replace a memory-bank note"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note file name (\".md\" appended when missing)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note content")),
	), s.handleWriteNote)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a memory-bank note"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Note file name")),
	), s.handleReadNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List memory-bank notes"),
	), s.handleListNotes)
}

// Package cli defines the Cobra command tree for the memloop CLI.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/memloop/memloop/internal/config"
	"github.com/memloop/memloop/internal/db"
	"github.com/memloop/memloop/internal/session"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "memloop",
	Short: "Persistent session memory for AI coding assistants",
	Long: `Memloop keeps a durable record of AI assistant sessions: every message,
the key moments worth remembering, and compressed summaries of older
history — stored per project in a local SQLite database.

Run 'memloop serve' in a project directory to expose the memory as MCP
tools, or use the subcommands to inspect and maintain it directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newSessionsCmd(),
		newContextCmd(),
		newSnapshotCmd(),
		newStatsCmd(),
		newCleanupCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("memloop %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

// findRoot locates the project root: the nearest ancestor of the working
// directory containing a .memloop/ directory, falling back to the working
// directory itself.
func findRoot() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	dir, _ := filepath.Abs(cwd)
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, ".memloop")); err == nil {
			return d, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return dir, nil
}

// openProject loads config for root, opens (creating if needed) the project
// database and returns a manager over it. The caller closes the database.
func openProject(root string) (config.GlobalConfig, *db.DB, *session.Manager, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return config.GlobalConfig{}, nil, nil, err
	}

	dbPath := config.ProjectDBPath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return config.GlobalConfig{}, nil, nil, fmt.Errorf("create project directory: %w", err)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return config.GlobalConfig{}, nil, nil, fmt.Errorf("open database: %w", err)
	}

	manager := session.NewManager(session.NewStore(database), session.ManagerConfig{
		MaxMessages:          cfg.Session.MaxMessages,
		CompressionThreshold: cfg.Session.CompressionThreshold,
		Logger:               newLogger(cfg.LogLevel),
	})
	return cfg, database, manager, nil
}

// newLogger builds the process logger. Output goes to stderr so that
// `serve` keeps stdout clean for the MCP transport.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

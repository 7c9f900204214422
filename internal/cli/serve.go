package cli

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/memloop/memloop/internal/artifact"
	"github.com/memloop/memloop/internal/config"
	"github.com/memloop/memloop/internal/mcp"
	"github.com/memloop/memloop/internal/memorybank"
	"github.com/memloop/memloop/internal/session"
)

func newServeCmd() *cobra.Command {
	var projectRoot string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve session memory as MCP tools over stdio",
		Long: `Start an MCP server on stdin/stdout exposing the session memory,
artifact index and notes as tools, and run the retention sweep on the
configured schedule while serving.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := projectRoot
			if root == "" {
				var err error
				root, err = findRoot()
				if err != nil {
					return err
				}
			}

			cfg, database, manager, err := openProject(root)
			if err != nil {
				return err
			}
			defer database.Close()

			log := newLogger(cfg.LogLevel)

			// Token estimates are best-effort: first use downloads the
			// encoding, which can fail offline.
			if tok, err := session.NewTokenizer(); err != nil {
				log.Warn("tokenizer unavailable, context token estimates disabled", "err", err)
			} else {
				manager.SetTokenizer(tok)
			}

			index := artifact.NewIndex(database, log)

			bank, err := memorybank.New(config.NotesDirPath(root, cfg))
			if err != nil {
				return fmt.Errorf("open notes directory: %w", err)
			}

			// Retention sweep on the configured cron schedule.
			sched := cron.New()
			_, err = sched.AddFunc(cfg.Retention.SweepSchedule, func() {
				archived, deleted, err := manager.CleanupOldSessions(cfg.Retention.ArchiveAfterDays)
				if err != nil {
					log.Error("retention sweep failed", "err", err)
					return
				}
				log.Info("retention sweep", "archived", archived, "deleted", deleted)
			})
			if err != nil {
				return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Retention.SweepSchedule, err)
			}
			sched.Start()
			defer sched.Stop()

			log.Info("serving MCP over stdio", "root", root, "version", version)
			return mcp.NewServer(manager, index, bank, log, version).Serve()
		},
	}

	cmd.Flags().StringVarP(&projectRoot, "root", "r", "", "Project root directory (default: auto-detect from cwd)")
	return cmd
}

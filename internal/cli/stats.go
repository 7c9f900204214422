package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memloop/memloop/internal/config"
	"github.com/memloop/memloop/internal/session"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics for the project database",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot()
			if err != nil {
				return err
			}

			dbPath := config.ProjectDBPath(root)
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				return fmt.Errorf("no memloop database in this project yet")
			}

			_, database, manager, err := openProject(root)
			if err != nil {
				return err
			}
			defer database.Close()

			stats, err := manager.GetStats()
			if err != nil {
				return err
			}

			var dbSize int64
			if fi, err := os.Stat(dbPath); err == nil {
				dbSize = fi.Size()
			}

			fmt.Printf("\nSessions: %d total across %d project(s)\n", stats.TotalSessions, stats.UniqueProjects)
			for _, st := range []session.Status{session.StatusActive, session.StatusArchived, session.StatusClosed} {
				if n := stats.ByStatus[st]; n > 0 {
					fmt.Printf("  %-10s %d\n", st, n)
				}
			}
			fmt.Printf("DB size:  %s\n", formatBytes(dbSize))
			fmt.Println()
			return nil
		},
	}
}

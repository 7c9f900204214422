package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Archive idle sessions and purge long-archived ones",
		Long: `Archive active sessions that have been idle longer than the threshold,
and permanently delete sessions that have been archived for over 90 days.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot()
			if err != nil {
				return err
			}

			cfg, database, manager, err := openProject(root)
			if err != nil {
				return err
			}
			defer database.Close()

			threshold := days
			if threshold <= 0 {
				threshold = cfg.Retention.ArchiveAfterDays
			}

			archived, deleted, err := manager.CleanupOldSessions(threshold)
			if err != nil {
				return err
			}

			fmt.Printf("Archived %d session(s) idle for over %d days.\n", archived, threshold)
			fmt.Printf("Deleted %d session(s) archived for over 90 days.\n", deleted)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "Idle days before archiving (default: configured archive_after_days)")
	return cmd
}

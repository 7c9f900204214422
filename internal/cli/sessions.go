package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <project>",
		Short: "List sessions for a project, most recently used first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot()
			if err != nil {
				return err
			}

			_, database, manager, err := openProject(root)
			if err != nil {
				return err
			}
			defer database.Close()

			sessions, err := manager.GetProjectSessions(args[0])
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Printf("No sessions for project %q.\n", args[0])
				return nil
			}

			fmt.Printf("%-36s  %-16s  %-16s  %s\n", "ID", "CREATED", "LAST USED", "STATUS")
			for _, s := range sessions {
				fmt.Printf("%-36s  %-16s  %-16s  %s\n",
					s.ID,
					s.CreatedAt.Format("2006-01-02 15:04"),
					s.LastUsed.Format("2006-01-02 15:04"),
					s.Status,
				)
			}
			return nil
		},
	}
}

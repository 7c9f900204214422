package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memloop/memloop/internal/session"
)

func newContextCmd() *cobra.Command {
	var project string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "context [session-id]",
		Short: "Show the assembled context for a session",
		Long: `Print a session's assembled context: its most important key moments,
recent messages and compressed history. With --project and no session id,
the project's most recently used active session is shown.`,
		Args: cobra.MaximumNArgs(1),
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

			var sessionID string
			switch {
			case len(args) == 1:
				sessionID = args[0]
			case project != "":
				sessionID, err = manager.GetLatestSession(project)
				if err == session.ErrNotFound {
					return fmt.Errorf("no active session for project %q", project)
				}
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("a session id or --project is required")
			}

			ctx, err := manager.GetSessionContext(sessionID)
			if err == session.ErrNotFound {
				return fmt.Errorf("session %q not found", sessionID)
			}
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(ctx)
			}

			printContext(ctx)
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Resolve the project's most recent active session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the context as JSON")
	return cmd
}

func printContext(ctx session.Context) {
	fmt.Printf("\nSession:  %s (%s)\n", ctx.SessionID, ctx.Status)
	fmt.Printf("Project:  %s\n", ctx.ProjectName)
	fmt.Printf("Created:  %s\n", ctx.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("Messages: %d total, %d key moments, %d compressed periods\n",
		ctx.Stats.TotalMessages, ctx.Stats.TotalKeyMoments, ctx.Stats.CompressedPeriods)
	if ctx.Stats.ApproxTokens > 0 {
		fmt.Printf("Tokens:   ~%d\n", ctx.Stats.ApproxTokens)
	}

	if len(ctx.KeyMoments) > 0 {
		fmt.Println("\nKey moments:")
		for _, km := range ctx.KeyMoments {
			fmt.Printf("  [%d] %s — %s\n", km.Importance, km.Type, km.Title)
		}
	}

	if len(ctx.CompressedHistory) > 0 {
		fmt.Println("\nCompressed history:")
		for _, p := range ctx.CompressedHistory {
			fmt.Printf("  %s: %s\n", p.Period, p.Summary)
		}
	}

	if len(ctx.RecentMessages) > 0 {
		fmt.Println("\nRecent messages:")
		for _, msg := range ctx.RecentMessages {
			content := msg.Content
			if len(content) > 80 {
				content = content[:77] + "..."
			}
			fmt.Printf("  %s %-9s %s\n", msg.CreatedAt.Format("15:04"), msg.Role+":", content)
		}
	}
	fmt.Println()
}

package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/memloop/memloop/internal/artifact"
)

func newSnapshotCmd() *cobra.Command {
	var project string
	var language string

	cmd := &cobra.Command{
		Use:   "snapshot <file>...",
		Short: "Save versioned snapshots of files into the artifact index",
		Long: `Read each file, store a content-addressed snapshot and extract its code
symbols. Snapshots are attached to the project's most recent active
session, creating one if none exists.`,
		Args: cobra.MinimumNArgs(1),
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

			if project == "" {
				project = filepath.Base(root)
			}
			sessionID, err := manager.GetOrCreateSession(project, "")
			if err != nil {
				return err
			}

			index := artifact.NewIndex(database, newLogger(cfg.LogLevel))

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  Warning: could not read %s: %v\n", path, err)
					continue
				}

				rel := path
				if r, err := filepath.Rel(root, path); err == nil && filepath.IsLocal(r) {
					rel = r
				}

				id, err := index.SaveFileSnapshot(sessionID, rel, string(content), language)
				if err != nil {
					fmt.Fprintf(os.Stderr, "  Warning: could not snapshot %s: %v\n", path, err)
					continue
				}
				fmt.Printf("%s: snapshot %s\n", rel, id[:8])
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name (default: root directory name)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language override (default: inferred from extension)")
	return cmd
}

// File: cmd/displays.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Activer007/computer-use-ootb/internal/display"
)

// newDisplaysCmd creates the `displays` command, a quick sanity check that
// monitor enumeration sees what the user expects before running a task.
func newDisplaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "Lists detected monitors and the virtual desktop bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := display.Snapshot(display.NewOSProvider())
			if err != nil {
				return err
			}

			monitors := layout.Monitors()
			union := display.Union(monitors)
			fmt.Printf("Virtual desktop: %dx%d at (%d,%d)\n\n",
				union.Dx(), union.Dy(), union.Min.X, union.Min.Y)

			for _, m := range monitors {
				primary := ""
				if m.Primary {
					primary = "  (primary)"
				}
				fmt.Printf("  monitor %d: %dx%d at (%d,%d)%s\n",
					m.ID, m.Bounds.Dx(), m.Bounds.Dy(), m.Bounds.Min.X, m.Bounds.Min.Y, primary)
			}
			return nil
		},
	}
}

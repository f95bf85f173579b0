package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kgforge/internal/cli/output"
	"github.com/leapstack-labs/kgforge/internal/transform"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the sources the transform command knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)

			t := output.Table{
				Title:  "Transform sources",
				Header: []string{"source", "inputs"},
			}
			for _, src := range transform.Sources(cc.Logger) {
				inputs := "-"
				if l, ok := src.(transform.InputLister); ok {
					inputs = strings.Join(l.Inputs(), ", ")
				}
				t.Rows = append(t.Rows, []any{src.Name(), inputs})
			}
			return cc.Renderer.Render(t)
		},
	}
}

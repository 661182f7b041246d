package main

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCmd(g *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the selected missions and scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := g.load()
			if err != nil {
				return err
			}
			ms, err := cat.Select(g.selector())
			if err != nil {
				return configError("%v", err)
			}
			t := table.NewWriter()
			t.SetOutputMirror(stdout)
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Mission", "Scenario", "Principal", "Tags", "Isolatable"})
			for _, m := range ms {
				for _, sc := range m.Scenarios {
					principal := sc.Principal
					if principal == "" {
						principal = "anonymous"
					}
					t.AppendRow(table.Row{m.Name, sc.Name, principal, strings.Join(sc.Tags, ","), m.Isolatable})
				}
			}
			t.Render()
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/statemesh/graph"
)

func (a *App) newValidateCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "validate <graph>",
		Short: "Validate a graph file",
		Long: `Load a graph file and report its states and transitions.

This command checks:
  - the initial state exists
  - every state has a known type
  - every transition targets a declared state
  - transition guards are valid jq expressions
  - terminal states declare no transitions

Examples:
  statemesh validate flow.yaml
  statemesh validate -q flow.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graph.LoadFile(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			if quiet {
				fmt.Fprintf(a.stdout, "%s: ok\n", args[0])
				return nil
			}

			a.describeGraph(g)

			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print ok on success")

	return cmd
}

func (a *App) describeGraph(g *graph.Graph) {
	fmt.Fprintf(a.stdout, "graph %s: %d states, initial %q\n", g.Source(), g.Len(), g.Initial())

	for _, name := range g.Names() {
		st, err := g.State(name)
		if err != nil {
			continue
		}
		def := st.Definition()

		var flags []string
		if st.Terminal() {
			flags = append(flags, "terminal")
		}
		if def.Tool != "" {
			flags = append(flags, "tool="+def.Tool)
		}
		if def.Response != "" {
			flags = append(flags, "canned")
		}

		line := fmt.Sprintf("  %s [%s]", name, st.Kind())
		if len(flags) > 0 {
			line += " " + strings.Join(flags, " ")
		}
		fmt.Fprintln(a.stdout, line)

		for _, tr := range def.Transitions {
			guard := ""
			if tr.When != "" {
				guard = fmt.Sprintf(" when %s", tr.When)
			}
			fmt.Fprintf(a.stdout, "    %s -> %s%s\n", tr.Key, tr.Target, guard)
		}
	}
}

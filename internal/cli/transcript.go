package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/statemesh/internal/util"
	"github.com/hupe1980/statemesh/memory/sqlite"
)

type transcriptOptions struct {
	db      string
	agentID string
	asJSON  bool
}

func (a *App) newTranscriptCmd() *cobra.Command {
	opts := &transcriptOptions{}

	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print a transcript stored in SQLite",
		Long: `Print the memory transcript of a session stored by the sqlite sink.
Without --agent the ids of all stored sessions are listed.

Examples:
  statemesh transcript --db memory.db
  statemesh transcript --db memory.db --agent support-42 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sink, err := sqlite.Open(ctx, opts.db)
			if err != nil {
				return err
			}
			defer sink.Close()

			if opts.agentID == "" {
				ids, err := sink.Agents(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(a.stdout, id)
				}
				return nil
			}

			rows, err := sink.List(ctx, opts.agentID)
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			for _, r := range rows {
				fmt.Fprintf(a.stdout, "%3d %-12s %-10s intent=%q tool=%q %s\n",
					r.Seq, r.State, r.Kind, r.Intent, r.Tool, util.MarshalCompact(r.Scratchpad))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&opts.db, "db", "memory.db", "Path to the SQLite database")
	cmd.Flags().StringVarP(&opts.agentID, "agent", "a", "", "Session id to print")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print rows as JSON")

	return cmd
}

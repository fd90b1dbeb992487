package app

import (
	"github.com/spf13/cobra"

	"github.com/zjy-dev/gapwatch/internal/history"
)

// NewHistoryCommand creates the "history" subcommand.
func NewHistoryCommand(g *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [root]",
		Short: "List stored coverage snapshots, oldest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := projectRoot(args)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(g.cfg, root)
			if err != nil {
				return err
			}
			defer closeStore()

			log, err := history.NewLog(store, 0)
			if err != nil {
				return err
			}
			snaps := log.Entries()
			if limit > 0 {
				snaps = log.Last(limit)
			}
			return render(cmd.OutOrStdout(), g, snaps)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the latest N snapshots (0 = all)")

	return cmd
}

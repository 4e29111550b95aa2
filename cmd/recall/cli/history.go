package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/felixgeelhaar/recall/internal/store"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent conversation turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		return printHistory(ctx, cmd.OutOrStdout(), st.log, historyLimit)
	},
}

func init() {
	RootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of turns to show")
}

// printHistory writes turns oldest first, one display text per line.
func printHistory(ctx context.Context, w io.Writer, log store.TurnLog, limit int) error {
	recs, err := log.RecentTurns(ctx, limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(w, "(no turns yet)")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintln(w, r.Message)
	}
	return nil
}

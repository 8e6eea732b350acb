package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaap/hardware-google-pixel/internal/daemon"
	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/sqlite"
)

func init() {
	historyCmd.Flags().StringVar(&historyTag, "tag", "", "Only sessions of this tag")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows (0 for all)")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only sessions closed within this window")
	historyCmd.AddCommand(historySummaryCmd)
	rootCmd.AddCommand(historyCmd)
}

var (
	historyTag   string
	historyLimit int
	historySince time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List closed sessions from the history store",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Total closed sessions and janky frames per tag",
	Args:  cobra.NoArgs,
	RunE:  runHistorySummary,
}

// openStore opens the history database the daemon writes to.
func openStore() (*sqlite.DB, error) {
	cfg, err := daemon.LoadConfigPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dir := cfg.Store.Dir
	if dir == "" {
		dir = daemon.Home()
	}
	return sqlite.Open(dir)
}

func runHistory(cmd *cobra.Command, args []string) error {
	q := sqlite.HistoryQuery{Limit: historyLimit}
	if historyTag != "" {
		tag, err := domain.ParseSessionTag(historyTag)
		if err != nil {
			return err
		}
		q.Tag = tag.String()
	}
	if historySince > 0 {
		q.Since = time.Now().Add(-historySince)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.SessionHistory(cmd.Context(), q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No closed sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPROFILE\tTARGET\tREPORTS\tJANK L/M/S\tLIFETIME\tCLOSED")
	for _, h := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d/%d/%d\t%s\t%s\n",
			h.IDString,
			h.Profile,
			h.Target,
			h.Reports,
			h.LightFrames, h.ModerateFrames, h.SevereFrames,
			h.ClosedAt.Sub(h.CreatedAt).Round(time.Second),
			h.ClosedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return w.Flush()
}

func runHistorySummary(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	sum, err := db.SummarizeHistory(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tSESSIONS\tREPORTS\tLIGHT\tMODERATE\tSEVERE")
	for _, s := range sum {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			s.Tag, s.Sessions, s.Reports, s.LightFrames, s.ModerateFrames, s.SevereFrames)
	}
	return w.Flush()
}

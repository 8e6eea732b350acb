package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yaap/hardware-google-pixel/internal/app/session"
)

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd, sessionsSnapshotCmd, sessionsCloseCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ps"},
	Short:   "List live hint sessions",
	Args:    cobra.NoArgs,
	RunE:    runSessions,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var cfg session.Config
		if err := c.get("/api/sessions/"+args[0], &cfg); err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

var sessionsSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Dump every session and thread with its resolved range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var snap session.Snapshot
		if err := c.get("/api/snapshot", &snap); err != nil {
			return err
		}
		return printJSON(cmd, snap)
	},
}

var sessionsCloseCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.do("DELETE", "/api/sessions/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed session %s\n", args[0])
		return nil
	},
}

func runSessions(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var body struct {
		Sessions []session.Config `json:"sessions"`
	}
	if err := c.get("/api/sessions", &body); err != nil {
		return err
	}

	if len(body.Sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No live sessions.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSESSION\tPROFILE\tTARGET\tUCLAMP.MIN\tTHREADS\tACTIVE\tREPORTS")
	for _, s := range body.Sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%v\t%t\t%d\n",
			s.ID,
			s.IDString,
			s.Profile,
			time.Duration(s.TargetNanos),
			s.ControlVariable,
			s.Threads,
			s.Active,
			s.Reports,
		)
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

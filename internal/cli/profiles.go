package cli

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

func init() {
	profilesCmd.AddCommand(profilesSetCmd)
	rootCmd.AddCommand(profilesCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List ADPF profiles and the profile selected per tag",
	Args:  cobra.NoArgs,
	RunE:  runProfiles,
}

var profilesSetCmd = &cobra.Command{
	Use:   "set TAG PROFILE",
	Short: "Select the profile used by sessions of a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]string{"profile": args[1]}
		if err := c.do("PUT", "/api/profiles/"+args[0], body, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s now uses %s\n", args[0], args[1])
		return nil
	},
}

func runProfiles(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var body struct {
		Profiles []domain.Profile `json:"profiles"`
		Tags     map[string]string `json:"tags"`
	}
	if err := c.get("/api/profiles", &body); err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tPROFILE")
	tags := make([]string, 0, len(body.Tags))
	for tag := range body.Tags {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		fmt.Fprintf(w, "%s\t%s\n", tag, body.Tags[tag])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NAME\tPID\tUCLAMP.MIN\tRATE\tGPU\tHEURISTIC")
	for _, p := range body.Profiles {
		fmt.Fprintf(w, "%s\t%t\t%d..%d\t%s\t%t\t%t\n",
			p.Name,
			p.PidOn,
			p.UclampMinLow, p.UclampMinHigh,
			p.ReportingRateLimit(),
			p.GpuBoostOn(),
			p.HeuristicBoostOn(),
		)
	}
	return w.Flush()
}

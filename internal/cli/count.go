package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Show stored contacts against the limit",
		Run:   runCount,
	}

	RootCmd.AddCommand(cmd)
}

func runCount(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	svc, err := newService(s, true)
	if err != nil {
		exitErr("configure", err)
	}

	c, err := svc.Capacity(cmd.Context(), userID)
	if err != nil {
		exitErr("count", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d / %d contacts (%d available)\n", c.Count, c.Max, c.Available)
	if c.AtLimit {
		fmt.Fprintln(cmd.OutOrStdout(), "contact limit reached")
	} else if c.Approaching {
		fmt.Fprintln(cmd.OutOrStdout(), "approaching contact limit")
	}
}

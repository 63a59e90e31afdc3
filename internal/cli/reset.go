package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errResetNotConfirmed = errors.New("refusing to delete contacts without --yes")

func init() {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every stored contact of the user",
		Long:  "Removes all contacts of --user from the store. This cannot be undone; pass --yes to confirm.",
		Run:   runReset,
	}
	cmd.Flags().Bool("yes", false, "Confirm the deletion")

	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		exitErr("reset", errResetNotConfirmed)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	svc, err := newService(s, true)
	if err != nil {
		exitErr("configure", err)
	}

	n, err := svc.ResetContacts(cmd.Context(), userID)
	if err != nil {
		exitErr("reset", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d contacts\n", n)
}

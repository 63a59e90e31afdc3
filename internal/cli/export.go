package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export contacts as CSV",
		Long:  "Write every stored contact as CSV (stdout or --out). The file re-imports as the rolodex format.",
		Run:   runExport,
	}
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	out, _ := cmd.Flags().GetString("out")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	svc, err := newService(s, true)
	if err != nil {
		exitErr("configure", err)
	}

	w := cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			exitErr("create output", err)
		}
		defer f.Close()
		w = f
	}

	n, err := svc.ExportCSV(cmd.Context(), userID, w)
	if err != nil {
		exitErr("export", err)
	}
	if out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d contacts to %s\n", n, out)
	}
}

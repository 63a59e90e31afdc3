package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rolodex/internal/core"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import contacts from a CSV file",
		Long: "Import contacts from a LinkedIn, Google, rolodex or arbitrary CSV export. " +
			"Unrecognized layouts are normalized by the configured language model, or by header matching with --offline.",
		Args: cobra.ExactArgs(1),
		Run:  runImport,
	}
	cmd.Flags().String("on-duplicate", "merge", "Duplicate policy: merge, skip or keep-both")
	cmd.Flags().String("on-oversized", "skip", "Oversized record policy: skip or continue")
	cmd.Flags().Bool("offline", false, "Normalize unknown layouts without calling a language model")

	RootCmd.AddCommand(cmd)
}

// importPolicy answers the pipeline's questions without a user.
type importPolicy struct {
	onDuplicate core.Resolution
	onOversized core.OversizedAction
}

func parsePolicy(dup, oversized string) (importPolicy, error) {
	var p importPolicy
	switch dup {
	case "merge":
		p.onDuplicate = core.ResolveMergeAll
	case "skip":
		p.onDuplicate = core.ResolveSkipAll
	case "keep-both":
		p.onDuplicate = core.ResolveKeepBoth
	default:
		return p, fmt.Errorf("--on-duplicate must be merge, skip or keep-both, got %q", dup)
	}
	switch oversized {
	case "skip":
		p.onOversized = core.OversizedSkipAll
	case "continue":
		p.onOversized = core.OversizedContinue
	default:
		return p, fmt.Errorf("--on-oversized must be skip or continue, got %q", oversized)
	}
	return p, nil
}

func runImport(cmd *cobra.Command, args []string) {
	dup, _ := cmd.Flags().GetString("on-duplicate")
	oversized, _ := cmd.Flags().GetString("on-oversized")
	offline, _ := cmd.Flags().GetBool("offline")

	policy, err := parsePolicy(dup, oversized)
	if err != nil {
		exitErr("flags", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		exitErr("open file", err)
	}
	defer f.Close()

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	svc, err := newService(s, offline)
	if err != nil {
		exitErr("configure", err)
	}

	sum, err := importFile(cmd.Context(), svc, userID, filepath.Base(args[0]), f, policy, cmd.ErrOrStderr())
	if err != nil {
		exitErr("import", err)
	}
	printSummary(cmd.OutOrStdout(), sum)
}

// importFile runs one import to completion, answering every prompt from
// policy. Progress lines go to progress.
func importFile(ctx context.Context, svc *core.Service, user, name string, r io.Reader, policy importPolicy, progress io.Writer) (core.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = core.ContextWithUserID(ctx, user)

	id, err := svc.Start(ctx, user, name, r)
	if err != nil {
		return core.Summary{}, err
	}

	events, err := svc.Subscribe(ctx, id, 0)
	if err != nil {
		return core.Summary{}, err
	}

	var (
		summary *core.Summary
		failure error
	)
	for ev := range events {
		switch ev.Type {
		case core.EventStatus:
			if ev.Session != nil && ev.Session.Summary != nil {
				summary = ev.Session.Summary
			}
			if err := answer(ctx, svc, id, ev, policy); err != nil && !errors.Is(err, core.ErrInvalidDecision) {
				svc.Cancel(id)
				return core.Summary{}, err
			}
			if ev.Message != "" {
				fmt.Fprintln(progress, ev.Message)
			}
		case core.EventComplete:
			for _, msg := range ev.Errors {
				fmt.Fprintln(progress, "  "+msg)
			}
		case core.EventError:
			failure = fmt.Errorf("%s (%s)", ev.Message, ev.Code)
		}
	}

	if failure != nil {
		return core.Summary{}, failure
	}
	if summary == nil {
		return core.Summary{}, core.ErrResolutionCancelled
	}
	return *summary, nil
}

// answer sends the decision the session is waiting for, if any.
func answer(ctx context.Context, svc *core.Service, id string, ev core.Event, policy importPolicy) error {
	switch ev.Status {
	case core.StatusPreview:
		return svc.Confirm(ctx, id)
	case core.StatusOversized:
		return svc.DecideOversized(ctx, id, core.OversizedDecision{Action: policy.onOversized})
	case core.StatusResolving:
		return svc.Resolve(ctx, id, policy.onDuplicate)
	}
	return nil
}

func printSummary(w io.Writer, s core.Summary) {
	fmt.Fprintf(w, "rows:          %d\n", s.RowsSeen)
	fmt.Fprintf(w, "saved:         %d\n", s.Saved)
	fmt.Fprintf(w, "merged:        %d\n", s.Merged)
	fmt.Fprintf(w, "kept both:     %d\n", s.KeptBoth)
	fmt.Fprintf(w, "skipped:       %d\n", s.Skipped)
	fmt.Fprintf(w, "already known: %d\n", s.AutoSkipped)
	fmt.Fprintf(w, "failed:        %d\n", s.Failed)
	if s.OversizedSkipped > 0 {
		fmt.Fprintf(w, "oversized:     %d\n", s.OversizedSkipped)
	}
}

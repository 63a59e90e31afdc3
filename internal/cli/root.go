// Package cli implements the rolodex command line: importing CSV exports
// into a local SQLite contact store and exporting them again.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/rolodex/internal/config"
	"github.com/JonMunkholm/rolodex/internal/core"
	_ "github.com/JonMunkholm/rolodex/internal/core/formats" // register formats
	"github.com/JonMunkholm/rolodex/internal/logging"
	"github.com/JonMunkholm/rolodex/internal/normalize"
	"github.com/JonMunkholm/rolodex/internal/store"
)

var (
	dbPath  string
	userID  string
	verbose bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "rolodex",
	Short: "Import and manage contacts from CSV exports",
	Long:  "Imports LinkedIn, Google and other contact CSVs into a local SQLite store, merging duplicates as it goes.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "warn"
		if verbose {
			level = "debug"
		}
		slog.SetDefault(logging.New(os.Stderr, level, "text"))
	},
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $ROLODEX_DB or ~/.rolodex/contacts.db)")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local", "User whose contacts are accessed")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("ROLODEX_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rolodex", "contacts.db")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

// newService builds an import service over s without pacing delays.
func newService(s core.ContactStore, offline bool) (*core.Service, error) {
	var normalizer core.Normalizer = normalize.NewHeuristic()
	if !offline {
		var llm config.LLMConfig
		if err := config.LoadSection(&llm); err != nil {
			return nil, err
		}
		n, err := normalize.FromConfig(llm)
		if err != nil {
			return nil, err
		}
		normalizer = n
	}
	return core.NewService(s, normalizer, core.Options{NewID: store.NewULID}), nil
}

func exitErr(msg string, err error) {
	if core.IsUserFacing(err) {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", msg, core.FormatUserError(err))
	} else {
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	}
	slog.Debug("command failed", "step", msg, "error", err)
	os.Exit(1)
}

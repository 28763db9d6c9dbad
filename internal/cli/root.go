// Package cli implements the roomview command tree.
package cli

import (
	"github.com/spf13/cobra"
)

type globalOptions struct {
	configFile string
	dbPath     string
	userID     string
	logLevel   string
	logFormat  string
}

// Execute runs the command tree.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}
	var room string

	cmd := &cobra.Command{
		Use:   "roomview",
		Short: "Terminal room timeline viewer",
		Long: `roomview shows one room's timeline from the local history store: it
pages older history in as you scroll up, keeps read receipts and an unread
badge, and supports search, sending and invite handling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts, room)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: ~/.config/roomview/config.yaml)")
	pf.StringVar(&opts.dbPath, "db", "", "history database path")
	pf.StringVar(&opts.userID, "user", "", "local user id, e.g. @me:example.org")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: console|json")
	cmd.Flags().StringVar(&room, "room", "", "room to open (default: the last opened room)")

	cmd.AddCommand(
		newImportCmd(opts),
		newTilesCmd(opts),
		newSearchCmd(opts),
		newRoomsCmd(opts),
	)
	return cmd
}

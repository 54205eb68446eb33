package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "taskforce",
	Short: "Mission server for squad objectives",
	Long: `taskforce runs mission sessions: tasks, area triggers and the phase
graph that drives a squad through an operation, replicated to clients over
websockets.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("taskforce version {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

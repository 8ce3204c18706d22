package cmd

import (
	"github.com/dmorley/colsnap/actions"
	"github.com/dmorley/colsnap/config"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a pipe described in a YAML or JSON file",
	Long: `Execute a pipe described in a YAML or JSON file.
Connections named in the pipe without credentials are loaded from the
connections config file by logical name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		runConfig.Connections = config.Connections
		runConfig.StackDumpOnPanic = stackDumpOnPanic
		return actions.RunPipeFromFile(&runConfig)
	},
}

var runConfig = actions.RunConfig{}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SortFlags = false
	switches.addFlag(runCmd, &runConfig.PipeFile, "file", "", true)
	_ = runCmd.MarkFlagFilename("file", "json", "yaml")
	switches.addFlag(runCmd, &runConfig.LogLevel, "log-level", "info", false)
	switches.addFlag(runCmd, &runConfig.StatsDumpFrequencySeconds, "stats", "5", false)
}

package cmd

import (
	"fmt"

	"github.com/dmorley/colsnap/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure connection details",
	Long: fmt.Sprintf(`Configure connections for use by pipes where:

- Connections are stored in file %q`, config.Connections.FullPath),
}

func init() {
	rootCmd.AddCommand(configCmd)
}

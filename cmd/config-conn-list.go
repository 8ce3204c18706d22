package cmd

import (
	"fmt"

	"github.com/dmorley/colsnap/actions"
	"github.com/dmorley/colsnap/config"
	"github.com/spf13/cobra"
)

var configConnListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print all connections",
	Long: fmt.Sprintf(`List connections stored in config store %q
by printing them all to STDOUT`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		return actions.RunConnectionList(config.Connections)
	},
}

func initConnList() {
	configConnCmd.AddCommand(configConnListCmd)
}

package cmd

import (
	"fmt"

	"github.com/dmorley/colsnap/actions"
	"github.com/dmorley/colsnap/config"
	"github.com/spf13/cobra"
)

var connAddCfg = actions.ConnectionConfig{}

var configConnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a connection",
	Long: fmt.Sprintf(`Add a database connection to the config store %q
by providing a DSN of the form:

<type>://<user>:<pass>@<host>[:<port>]/<dbname>[?<opt1>=<value1>&...]

or a plain file path for sqlite.`,
		config.Connections.FullPath),
	RunE: func(cmd *cobra.Command, args []string) error {
		connAddCfg.Store = config.Connections
		cmd.SilenceUsage = true
		return actions.RunConnectionAdd(&connAddCfg)
	},
}

func initConnAdd() {
	configConnCmd.AddCommand(configConnAddCmd)
	configConnAddCmd.Flags().SortFlags = false
	switches.addFlag(configConnAddCmd, &connAddCfg.LogicalName, "connection-name", "", true)
	switches.addFlag(configConnAddCmd, &connAddCfg.Type, "connection-type", "", true)
	switches.addFlag(configConnAddCmd, &connAddCfg.Dsn, "dsn", "", true)
	switches.addFlag(configConnAddCmd, &connAddCfg.Force, "force-connection", "false", false)
}

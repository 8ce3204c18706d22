package cmd

import (
	"github.com/spf13/cobra"
)

var configConnCmd = &cobra.Command{
	Use:     "conn",
	Aliases: []string{"connections"},
	Short:   "Configure database connections",
}

func init() {
	configCmd.AddCommand(configConnCmd)
	initConnAdd()
	initConnList()
	initConnRemove()
}

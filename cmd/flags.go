package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type cliFlag struct {
	name      string // name of flag
	shortHand string // single character name for the flag
	desc      string // description of the flag; the long text
}

type cliFlags map[string]cliFlag

var switches = cliFlags{
	"file": cliFlag{name: "file", shortHand: "f",
		desc: "File containing the pipe definition (.yaml or .json)"},
	"log-level": cliFlag{name: "log-level", shortHand: "l",
		desc: "Log level: \"error | warn | info | debug\""},
	"stats": cliFlag{name: "stats", shortHand: "L",
		desc: "Number of seconds between dumping step statistics (use 0 to disable)"},
	"dry-run": cliFlag{name: "dry-run", shortHand: "d",
		desc: "Print the SQL query without executing it"},
	"print-header": cliFlag{name: "print-header", shortHand: "x",
		desc: "Print a header for SQL query results"},
	"connection-name": cliFlag{name: "connection-name", shortHand: "c",
		desc: "Connection name referred to by pipe definitions"},
	"connection-type": cliFlag{name: "type", shortHand: "t",
		desc: "Database type: \"postgres | mysql | sqlserver | sqlite\""},
	"dsn": cliFlag{name: "dsn", shortHand: "D",
		desc: "DSN of the form <type>://<user>:<pass>@<host>[:<port>]/<dbname>,\n" +
			"or a plain file path for sqlite"},
	"force-connection": cliFlag{name: "force", shortHand: "F",
		desc: "Allow overwrite of existing connections"},
}

// addFlag adds a flag to cobra.Command c based on the type of targetVar (which must be a pointer).
// The name, shorthand and description of the flag are looked up in map cliFlags.
// The flag is marked as required in Cobra based on the value of required.
func (f *cliFlags) addFlag(c *cobra.Command, targetVar interface{}, name string, defaultValue string, required bool) {
	sw, ok := (*f)[name]
	if !ok {
		panic(fmt.Sprintf("unregistered CLI flag, %q", name))
	}
	switch p := targetVar.(type) {
	case *string:
		c.Flags().StringVarP(p, sw.name, sw.shortHand, defaultValue, sw.desc)
		if defaultValue != "" { // signal that the flag was set so defaults take effect.
			mustSetFlag(c.Flags(), sw.name, defaultValue)
		}
	case *bool:
		c.Flags().BoolVarP(p, sw.name, sw.shortHand, strings.EqualFold(defaultValue, "true"), sw.desc)
	case *int:
		defaultInt, err := strconv.Atoi(defaultValue)
		if err != nil {
			fmt.Printf("the value for flag %q must be an integer: %v\n", sw.name, err)
			os.Exit(1)
		}
		c.Flags().IntVarP(p, sw.name, sw.shortHand, defaultInt, sw.desc)
		if defaultValue != "" { // signal that the flag was set so defaults take effect.
			mustSetFlag(c.Flags(), sw.name, defaultValue)
		}
	default:
		panic("Error: unhandled CLI flag target value type")
	}
	if required { // if the flag is required...
		_ = c.MarkFlagRequired(sw.name)
	}
}

func mustSetFlag(f *pflag.FlagSet, name string, val string) {
	if err := f.Set(name, val); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// getQueryFromArgsFunc returns a cobra Args func that saves arg[0] as the
// connection name and concatenates the remaining args into a SQL string.
func getQueryFromArgsFunc(connectionName *string, query *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 { // if we are missing arguments...
			return errors.New("please supply a connection and a SQL query")
		}
		*connectionName = args[0]
		*query = strings.Join(args[1:], " ")
		return nil
	}
}

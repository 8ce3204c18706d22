package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmorley/colsnap/config"
	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

// supportedConnectionTypes are the database types the extractor can open.
var supportedConnectionTypes = map[string]struct{}{
	constants.ConnectionTypePostgres:  {},
	constants.ConnectionTypeMysql:     {},
	constants.ConnectionTypeSqlServer: {},
	constants.ConnectionTypeSqlite:    {},
}

func supportedConnectionTypesTxt() string {
	types := make([]string, 0, len(supportedConnectionTypes))
	for t := range supportedConnectionTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

type ConnectionConfig struct {
	Store       *config.File
	LogicalName string `errorTxt:"connection-name" mandatory:"yes"`
	Type        string
	Dsn         string
	Force       bool
}

// RunConnectionAdd validates and persists a connection in the connections store.
func RunConnectionAdd(cfg *ConnectionConfig) error {
	if cfg.LogicalName == "" {
		return fmt.Errorf("please supply a value for connection-name")
	}
	if _, ok := supportedConnectionTypes[cfg.Type]; !ok {
		return fmt.Errorf("%q is an unsupported connection type, please use one of: %v", cfg.Type, supportedConnectionTypesTxt())
	}
	if cfg.Dsn == "" {
		return fmt.Errorf("please supply a value for dsn")
	}
	if cfg.Type != constants.ConnectionTypeSqlite { // sqlite DSNs are plain file paths.
		if _, err := dburl.Parse(cfg.Dsn); err != nil {
			return errors.Wrap(err, "unable to parse DSN")
		}
	}
	// Check for an existing saved connection.
	existing, err := cfg.Store.LoadConnection(cfg.LogicalName)
	if err == nil && existing.LogicalName != "" && !cfg.Force { // if the connection exists, but we are not allowed to overwrite it...
		return fmt.Errorf("connection exists, use force to update the connection or remove it first")
	}
	connection := shared.ConnectionDetails{
		LogicalName: cfg.LogicalName,
		Type:        cfg.Type,
		Data:        map[string]string{"dsn": cfg.Dsn},
	}
	if err := cfg.Store.AddConnection(connection); err != nil {
		return fmt.Errorf("error writing connections config file after adding: %v", err)
	}
	fmt.Printf("Connection %q added\n", cfg.LogicalName)
	return nil
}

// RunConnectionList prints every stored connection with passwords redacted.
func RunConnectionList(store *config.File) error {
	keys, err := store.GetAllKeys()
	if err != nil {
		return err
	}
	sort.Strings(keys)
	for _, k := range keys { // for each connection...
		conn, err := store.LoadConnection(k)
		if err != nil {
			return err
		}
		fmt.Printf("%v:\n%v\n", k, conn)
	}
	return nil
}

func RunConnectionRemove(cfg *ConnectionConfig) error {
	if cfg.LogicalName == "" {
		return fmt.Errorf("please supply a value for connection-name")
	}
	if err := cfg.Store.Delete(cfg.LogicalName); err != nil {
		return fmt.Errorf("unable to delete connection %q from config: %v", cfg.LogicalName, err)
	}
	fmt.Printf("Connection %q removed\n", cfg.LogicalName)
	return nil
}

package config

import (
	"fmt"

	"github.com/dmorley/colsnap/rdbms/shared"
)

// GetConnectionType returns the connection type stored under connectionName.
// An error is returned if the key doesn't exist or carries no type.
func (c *File) GetConnectionType(connectionName string) (connectionType string, err error) {
	genericConn := &shared.ConnectionDetails{}
	if err := c.Get(connectionName, genericConn); err != nil {
		return "", err
	}
	if genericConn.Type == "" {
		return "", fmt.Errorf("unknown type for connection %q", connectionName)
	}
	return genericConn.Type, nil
}

// GetConnectionDetails fetches connection details from the File c using the connectionName to do the lookup.
func (c *File) GetConnectionDetails(connectionName string) (*shared.ConnectionDetails, error) {
	genericConn := &shared.ConnectionDetails{}
	if err := c.Get(connectionName, genericConn); err != nil {
		return nil, err
	}
	if genericConn.Type == "" { // if the connection was not found...
		return nil, fmt.Errorf("connection %q is not configured: use 'config conn add' to create it", connectionName)
	}
	return genericConn, nil
}

// LoadConnection implements the shared.ConnectionGetter interface.
func (c *File) LoadConnection(connectionName string) (shared.ConnectionDetails, error) {
	d := shared.ConnectionDetails{}
	err := c.Get(connectionName, &d)
	return d, err
}

// AddConnection stores the supplied details under their logical name.
func (c *File) AddConnection(d shared.ConnectionDetails) error {
	if d.LogicalName == "" {
		return fmt.Errorf("missing logical name for connection")
	}
	if d.Type == "" {
		return fmt.Errorf("missing type for connection %q", d.LogicalName)
	}
	return c.Set(d.LogicalName, d)
}

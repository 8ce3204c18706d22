// Package config persists named connection details as YAML in the user's
// config home directory, ~/.colsnap by default.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

var colsnapHomeDir string
var Connections *File

func init() {
	Connections = NewConfigFileWithDir(mustGetConfigHomeDir(), ConnectionsFileFullName)
}

const (
	MainDir                 = ".colsnap"
	ConnectionsFileName     = "connections"
	ConnectionsFileExt      = "yaml"
	ConnectionsFileFullName = ConnectionsFileName + "." + ConnectionsFileExt
)

// FileNotFoundError denotes failing to find a configuration file.
type FileNotFoundError struct {
	name string
}

func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
}

func (k KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

// File is a YAML key-value store backed by a file created on first write.
// Values are decoded into typed structs with mapstructure.
type File struct {
	Dirname      string
	FileName     string
	FilePrefix   string
	FileExt      string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	mu           sync.Mutex
}

func NewConfigFileWithDir(dirName string, filename string) *File {
	c := &File{Dirname: dirName, FileName: filename}
	c.FullPath = path.Join(dirName, filename)
	c.FileExt = strings.TrimLeft(path.Ext(filename), ".")
	c.FilePrefix = strings.TrimSuffix(c.FileName, "."+c.FileExt)
	c.data = make(map[string]interface{})
	return c
}

// Get fetches the key from the config File into out, which must be a pointer.
// A missing file reads as an empty store; a missing key is a KeyNotFoundError.
func (c *File) Get(key string, out interface{}) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	d, ok := c.data[key]
	if !ok { // if the key was not found...
		return KeyNotFoundError{c.FullPath, key}
	}
	return mapstructure.Decode(d, out)
}

func (c *File) Set(key string, val interface{}) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	c.data[key] = val
	return c.save()
}

func (c *File) Delete(key string) error {
	if err := c.ensureLoaded(); err != nil {
		return err
	}
	if _, keyExists := c.data[key]; !keyExists { // if there is nothing to delete...
		return KeyNotFoundError{c.FullPath, key}
	}
	delete(c.data, key)
	return c.save()
}

func (c *File) GetAllKeys() ([]string, error) {
	if err := c.ensureLoaded(); err != nil {
		return nil, err
	}
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	return retval, nil
}

func (c *File) ensureLoaded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dataIsLoaded {
		return nil
	}
	b, err := ioutil.ReadFile(c.FullPath)
	if err != nil {
		if os.IsNotExist(err) { // if the file does not exist yet...
			c.dataIsLoaded = true
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(b, c.data); err != nil {
		return err
	}
	c.dataIsLoaded = true
	return nil
}

func (c *File) save() error {
	b, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("error marshalling data while writing config file %v: %v", c.FullPath, err)
	}
	if err := makeDir(c.Dirname); err != nil { // if we could not create the config directory...
		return err
	}
	return ioutil.WriteFile(c.FullPath, b, 0600)
}

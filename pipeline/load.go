package pipeline

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/dmorley/colsnap/pipeerr"
	"github.com/ghodss/yaml"
)

// LoadPipeDefinition reads and validates a pipe definition file.
// YAML files are converted to JSON first so both formats share one code path.
func LoadPipeDefinition(fileName string) (*PipeDefinition, error) {
	b, err := ioutil.ReadFile(fileName)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("unable to read pipe definition %v", fileName))
	}
	var jsonBytes []byte
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".yaml", ".yml":
		jsonBytes, err = yaml.YAMLToJSON(b)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.SchemaError, err, fmt.Sprintf("unable to parse YAML pipe definition %v", fileName))
		}
	case ".json":
		jsonBytes = b
	default:
		return nil, pipeerr.New(pipeerr.SchemaError, "unsupported pipe definition extension %v; use .yaml, .yml or .json", filepath.Ext(fileName))
	}
	def := &PipeDefinition{}
	if err := json.Unmarshal(jsonBytes, def); err != nil {
		return nil, pipeerr.Wrap(pipeerr.SchemaError, err, fmt.Sprintf("unable to parse pipe definition %v", fileName))
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

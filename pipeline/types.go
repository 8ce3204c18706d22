// Package pipeline loads declarative pipe definitions and runs them:
// one extract-transform-write chain per table, sequentially, fail-fast.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/dmorley/colsnap/tablespec"
)

// Supported step operations.
const (
	OpMap              = "map"
	OpSplit            = "split"
	OpFilterNulls      = "filter-nulls"
	OpNumericTransform = "numeric-transform"
	OpCategorize       = "categorize"
	OpAggregate        = "aggregate"
)

var supportedOps = map[string]struct{}{
	OpMap:              {},
	OpSplit:            {},
	OpFilterNulls:      {},
	OpNumericTransform: {},
	OpCategorize:       {},
	OpAggregate:        {},
}

// StepDefinition is one declarative transform applied to one table's stream.
type StepDefinition struct {
	Table string            `json:"table" errorTxt:"step table" mandatory:"yes"`
	Op    string            `json:"op" errorTxt:"step op" mandatory:"yes"`
	Data  map[string]string `json:"data"`
}

// WriterDefinition selects the output directory and file format.
type WriterDefinition struct {
	OutputDir string `json:"outputDir" errorTxt:"writer output directory" mandatory:"yes"`
	Format    string `json:"format"`
}

// PipeDefinition is the parsed pipe file: where to connect, what to extract,
// how to transform it and where to write the results.
type PipeDefinition struct {
	SchemaVersion int                   `json:"schemaVersion"`
	Description   string                `json:"description"`
	Source        string                `json:"source" errorTxt:"source connection name" mandatory:"yes"`
	Connections   shared.DBConnections  `json:"connections"`
	Tables        []tablespec.TableSpec `json:"tables"`
	Steps         []StepDefinition      `json:"steps"`
	Writer        WriterDefinition      `json:"writer"`
}

// Validate checks the whole definition and returns one aggregate error
// listing every problem, so a bad pipe file fails before anything runs.
func (d *PipeDefinition) Validate() error {
	problems := make([]string, 0)
	if d.Source == "" {
		problems = append(problems, "missing source connection name")
	}
	if len(d.Tables) == 0 {
		problems = append(problems, "missing table list")
	}
	tableNames := make(map[string]struct{}, len(d.Tables))
	for _, spec := range d.Tables {
		if err := spec.Validate(); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if _, dup := tableNames[spec.Name]; dup {
			problems = append(problems, fmt.Sprintf("table %q appears more than once", spec.Name))
		}
		tableNames[spec.Name] = struct{}{}
	}
	for idx, step := range d.Steps {
		if step.Table == "" || step.Op == "" {
			problems = append(problems, fmt.Sprintf("step %v is missing its table or op", idx+1))
			continue
		}
		if _, ok := supportedOps[step.Op]; !ok {
			problems = append(problems, fmt.Sprintf("step %v has unsupported op %q", idx+1, step.Op))
		}
		if _, ok := tableNames[step.Table]; !ok {
			problems = append(problems, fmt.Sprintf("step %v references unknown table %q", idx+1, step.Table))
		}
	}
	if d.Writer.OutputDir == "" {
		problems = append(problems, "missing writer output directory")
	}
	if d.Writer.Format == "" { // default applied before validation of the value.
		d.Writer.Format = constants.OutputFormatParquet
	}
	if d.Writer.Format != constants.OutputFormatParquet && d.Writer.Format != constants.OutputFormatCsv {
		problems = append(problems, fmt.Sprintf("unsupported writer format %q", d.Writer.Format))
	}
	if len(problems) > 0 {
		return pipeerr.New(pipeerr.SchemaError, "invalid pipe definition: %v", strings.Join(problems, "; "))
	}
	return nil
}

// StepsForTable returns the steps bound to the named table, in configured order.
func (d *PipeDefinition) StepsForTable(tableName string) []StepDefinition {
	steps := make([]StepDefinition, 0)
	for _, step := range d.Steps {
		if step.Table == tableName {
			steps = append(steps, step)
		}
	}
	return steps
}

// Package actions holds the logic behind each CLI command, keeping the cmd
// package down to cobra wiring.
package actions

import (
	"fmt"

	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeline"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/dmorley/colsnap/stats"
)

type RunConfig struct {
	PipeFile                  string
	Connections               shared.ConnectionGetter
	LogLevel                  string
	StackDumpOnPanic          bool
	StatsDumpFrequencySeconds int
}

// RunPipeFromFile loads the pipe definition file and executes it.
func RunPipeFromFile(cfg *RunConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil pointer for pipe config supplied")
	}
	if cfg.PipeFile == "" {
		return fmt.Errorf("supply a YAML or JSON pipe definition file name")
	}
	log := logger.NewLogger("colsnap", cfg.LogLevel, cfg.StackDumpOnPanic)
	def, err := pipeline.LoadPipeDefinition(cfg.PipeFile)
	if err != nil {
		return err
	}
	return pipeline.RunPipe(log, def, cfg.Connections,
		stats.SetStatsDumpFrequency(cfg.StatsDumpFrequencySeconds))
}

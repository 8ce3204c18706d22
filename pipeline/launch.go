package pipeline

import (
	"fmt"
	"sync"

	"github.com/dmorley/colsnap/components"
	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/rdbms"
	"github.com/dmorley/colsnap/rdbms/shared"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Pipe-definition function names mapped onto component mapper names.
var mapFunctionNames = map[string]string{
	"upper":         "Upper",
	"lower":         "Lower",
	"trim":          "Trim",
	"constant":      "AddConstant",
	"regexpReplace": "RegexpReplace",
	"jsonLogic":     "JsonLogic",
}

// Pipe-definition numeric function names mapped onto component op names.
var numericFunctionNames = map[string]string{
	"sqrt":     "Sqrt",
	"abs":      "Abs",
	"log":      "Log",
	"round":    "Round",
	"scale-by": "ScaleBy",
}

// RunPipe executes a validated pipe definition top to bottom: open the source
// connection, then per table in specification order run the chain
// extract -> transforms -> write and join it before the next table starts.
// The first failing table aborts the run and its error is returned.
func RunPipe(log logger.Logger, def *PipeDefinition, getter shared.ConnectionGetter, statsOptions ...func(*stats.PipeStatsManager)) error {
	if err := def.Validate(); err != nil {
		return err
	}
	runId := xid.New().String()
	log.Info("Starting pipe run ", runId, ": ", def.Description)
	conn, err := resolveConnection(def, getter)
	if err != nil {
		return err
	}
	db, err := rdbms.OpenDbConnection(log, conn)
	if err != nil {
		return err
	}
	defer db.Close()
	statsMgr := stats.NewPipeStats(log, statsOptions...)
	statsMgr.StartDumping()
	defer statsMgr.StopDumping()
	for _, spec := range def.Tables { // for each table in specification order...
		if err := runTable(log, db, statsMgr, spec, def.StepsForTable(spec.Name), def.Writer); err != nil {
			log.Error("Pipe run ", runId, " aborted on table ", spec.Name, ": ", err)
			return err // fail-fast; later tables never start.
		}
	}
	log.Info("Pipe run ", runId, " complete")
	return nil
}

// resolveConnection finds the source connection in the pipe definition,
// falling back to the connections config file for entries without credentials.
func resolveConnection(def *PipeDefinition, getter shared.ConnectionGetter) (shared.ConnectionDetails, error) {
	conn, ok := def.Connections[def.Source]
	if ok && len(conn.Data) > 0 { // if the pipe file carries full details...
		if conn.LogicalName == "" {
			conn.LogicalName = def.Source
		}
		return conn, nil
	}
	if getter == nil {
		return shared.ConnectionDetails{}, pipeerr.New(pipeerr.ConnectionError, "connection %q has no details in the pipe definition and no connections store is available", def.Source)
	}
	if def.Connections == nil {
		def.Connections = shared.DBConnections{}
	}
	if conn.LogicalName == "" { // the config store lookup uses the logical name.
		conn.LogicalName = def.Source
		def.Connections[def.Source] = conn
	}
	if err := def.Connections.LoadConnection(getter, def.Source); err != nil {
		return shared.ConnectionDetails{}, pipeerr.Wrap(pipeerr.ConnectionError, err, fmt.Sprintf("unable to load connection %q", def.Source))
	}
	return def.Connections[def.Source], nil
}

// tableRun tracks the live components of one table's chain so a panic in any
// of them can shut the rest down and surface one typed error.
type tableRun struct {
	log          logger.Logger
	mu           sync.Mutex
	controlChans []chan components.ControlAction
	failed       bool
	errOnce      sync.Once
	errChan      chan error
}

func newTableRun(log logger.Logger) *tableRun {
	return &tableRun{log: log, errChan: make(chan error, 1)}
}

// register adds a component's control channel to the chain. A component
// registered after the chain has already failed is shut down straight away,
// since the shutdown pass that ran inside fail() never saw it.
func (r *tableRun) register(controlChan chan components.ControlAction) {
	r.mu.Lock()
	r.controlChans = append(r.controlChans, controlChan)
	failed := r.failed
	r.mu.Unlock()
	if failed { // if the chain failed before this component was registered...
		sendShutdown(controlChan)
	}
}

// panicHandler returns a func to be deferred inside a component goroutine.
// The first recovered panic becomes the table's error and triggers shutdown
// of every other component in the chain.
func (r *tableRun) panicHandler(kind pipeerr.Kind) components.PanicHandlerFunc {
	return func() {
		if rec := recover(); rec != nil { // if there was a panic...
			r.fail(toPipeError(kind, rec))
		}
	}
}

func (r *tableRun) fail(err error) {
	r.errOnce.Do(func() {
		r.errChan <- err
		r.mu.Lock()
		r.failed = true
		r.mu.Unlock()
		go r.shutdown()
	})
}

// shutdown asks every registered component to stop.
func (r *tableRun) shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, controlChan := range r.controlChans {
		sendShutdown(controlChan)
	}
}

// sendShutdown posts a Shutdown action without blocking. Components that
// already completed have nobody reading their control channel; the buffered
// send covers them and responses are not waited on.
func sendShutdown(controlChan chan components.ControlAction) {
	action := components.ControlAction{Action: components.Shutdown, ResponseChan: make(chan error, 1)}
	select {
	case controlChan <- action:
	default: // channel already holds a pending action.
	}
}

// toPipeError converts a recovered panic value into a typed pipe error.
// Components panic via the logger so the common case is a *logrus.Entry.
func toPipeError(kind pipeerr.Kind, rec interface{}) error {
	switch x := rec.(type) {
	case *logrus.Entry:
		return pipeerr.New(kind, "%v", x.Message)
	case *pipeerr.Error:
		return x
	case error:
		return pipeerr.Wrap(kind, x, "component failure")
	default:
		return pipeerr.New(kind, "%v", x)
	}
}

// runTable wires and runs one table's chain: extract -> transforms -> write.
// It blocks until the writer finishes or the chain fails.
func runTable(log logger.Logger,
	db shared.Connector,
	statsMgr *stats.PipeStatsManager,
	spec tablespec.TableSpec,
	steps []StepDefinition,
	writerDef WriterDefinition,
) (err error) {
	run := newTableRun(log)
	waiter := newChainWaiter()
	// Setup-phase panics (bad step config) happen in this goroutine.
	defer func() {
		if rec := recover(); rec != nil {
			run.fail(toPipeError(pipeerr.TransformError, rec))
		}
		select {
		case e := <-run.errChan:
			err = e
		default:
		}
	}()
	log.Info("Processing table ", spec.Name)
	// Extraction.
	stepName := spec.Name + ".extract"
	dataChan, controlChan := components.NewTableInput(&components.TableInputConfig{
		Log:            log,
		Name:           stepName,
		Db:             db,
		Spec:           spec,
		StepWatcher:    statsMgr.AddStepWatcher(stepName),
		WaitCounter:    waiter.newStepWaiter(stepName),
		PanicHandlerFn: run.panicHandler(pipeerr.QueryError),
	})
	run.register(controlChan)
	// Transforms, in configured order. Each step feeds the next and may
	// extend the column specification seen by the writer.
	for idx, step := range steps {
		stepName = fmt.Sprintf("%v.%v.%v", spec.Name, step.Op, idx+1)
		dataChan, controlChan, spec = launchStep(log, run, statsMgr, waiter, stepName, step, spec, dataChan)
		run.register(controlChan)
	}
	// Writer.
	stepName = spec.Name + ".write"
	summaryChan, controlChan := components.NewFileWriter(&components.FileWriterConfig{
		Log:            log,
		Name:           stepName,
		InputChan:      dataChan,
		Spec:           spec,
		OutputDir:      writerDef.OutputDir,
		Format:         writerDef.Format,
		StepWatcher:    statsMgr.AddStepWatcher(stepName),
		WaitCounter:    waiter.newStepWaiter(stepName),
		PanicHandlerFn: run.panicHandler(pipeerr.IOError),
	})
	run.register(controlChan)
	// Wait for the writer's summary or the first failure.
	select {
	case rec, ok := <-summaryChan:
		if ok {
			log.Info("Table ", spec.Name, " written: file=", rec.GetData("file"), " rows=", rec.GetData("rows"))
		}
	case e := <-run.errChan:
		run.errChan <- e // keep it for the deferred collection above.
	}
	waiter.Wait() // join the chain before the next table starts.
	return
}

// launchStep starts the component for one step definition and returns its
// output channel, control channel and the updated column specification.
func launchStep(log logger.Logger,
	run *tableRun,
	statsMgr *stats.PipeStatsManager,
	waiter *chainWaiter,
	stepName string,
	step StepDefinition,
	spec tablespec.TableSpec,
	inputChan chan stream.Record,
) (chan stream.Record, chan components.ControlAction, tablespec.TableSpec) {
	watcher := statsMgr.AddStepWatcher(stepName)
	stepWaiter := waiter.newStepWaiter(stepName)
	panicFn := run.panicHandler(pipeerr.TransformError)
	switch step.Op {
	case OpMap:
		componentType, ok := mapFunctionNames[step.Data["function"]]
		if !ok {
			log.Panic(stepName, " unsupported map function ", step.Data["function"])
		}
		outputChan, controlChan := components.NewColumnMapper(&components.ColumnMapperConfig{
			Log:            log,
			Name:           stepName,
			InputChan:      inputChan,
			Steps:          []components.ComponentStep{{Type: componentType, Data: step.Data}},
			StepWatcher:    watcher,
			WaitCounter:    stepWaiter,
			PanicHandlerFn: panicFn,
		})
		return outputChan, controlChan, specAfterMap(spec, step.Data)
	case OpSplit:
		outputChan, controlChan := components.NewColumnSplitter(&components.ColumnSplitterConfig{
			Log:            log,
			Name:           stepName,
			InputChan:      inputChan,
			FieldName:      step.Data["fieldName"],
			Delimiter:      step.Data["delimiter"],
			ResultColumns:  step.Data["resultColumns"],
			StepWatcher:    watcher,
			WaitCounter:    stepWaiter,
			PanicHandlerFn: panicFn,
		})
		newSpec := spec
		for _, col := range h.CsvToStringSliceTrimSpaces(step.Data["resultColumns"]) {
			newSpec = newSpec.WithColumn(col, c.ColumnTypeString)
		}
		return outputChan, controlChan, newSpec
	case OpFilterNulls:
		outputChan, controlChan := components.NewNullFilter(&components.NullFilterConfig{
			Log:            log,
			Name:           stepName,
			InputChan:      inputChan,
			FieldNames:     step.Data["fieldNames"],
			StepWatcher:    watcher,
			WaitCounter:    stepWaiter,
			PanicHandlerFn: panicFn,
		})
		return outputChan, controlChan, spec
	case OpNumericTransform:
		op, ok := numericFunctionNames[step.Data["function"]]
		if !ok {
			log.Panic(stepName, " unsupported numeric function ", step.Data["function"])
		}
		outputChan, controlChan := components.NewNumericTransform(&components.NumericTransformConfig{
			Log:            log,
			Name:           stepName,
			InputChan:      inputChan,
			Spec:           spec,
			FieldName:      step.Data["fieldName"],
			ResultField:    step.Data["resultField"],
			Op:             op,
			ScaleFactor:    step.Data["scaleFactor"],
			Sentinel:       step.Data["sentinel"],
			StepWatcher:    watcher,
			WaitCounter:    stepWaiter,
			PanicHandlerFn: panicFn,
		})
		resultField := step.Data["resultField"]
		if resultField == "" {
			resultField = step.Data["fieldName"]
		}
		return outputChan, controlChan, spec.WithColumn(resultField, c.ColumnTypeFloat)
	case OpCategorize:
		outputChan, controlChan := components.NewCategorizer(&components.CategorizerConfig{
			Log:              log,
			Name:             stepName,
			InputChan:        inputChan,
			FieldName:        step.Data["fieldName"],
			ResultField:      step.Data["resultField"],
			Vocabulary:       step.Data["vocabulary"],
			ExtendVocabulary: h.GetTrueFalseStringAsBool(step.Data["extendVocabulary"]),
			StepWatcher:      watcher,
			WaitCounter:      stepWaiter,
			PanicHandlerFn:   panicFn,
		})
		resultField := step.Data["resultField"]
		if resultField == "" {
			resultField = step.Data["fieldName"] + "_code"
		}
		return outputChan, controlChan, spec.WithColumn(resultField, c.ColumnTypeInteger)
	case OpAggregate:
		outputChan, controlChan := components.NewAggregator(&components.AggregatorConfig{
			Log:            log,
			Name:           stepName,
			InputChan:      inputChan,
			GroupBy:        step.Data["groupBy"],
			Aggregates:     step.Data["aggregates"],
			StepWatcher:    watcher,
			WaitCounter:    stepWaiter,
			PanicHandlerFn: panicFn,
		})
		return outputChan, controlChan, spec // aggregates are logged, not persisted.
	default:
		log.Panic(stepName, " unsupported op ", step.Op)
		return nil, nil, spec
	}
}

// specAfterMap extends the column specification with any column a map function creates.
func specAfterMap(spec tablespec.TableSpec, data map[string]string) tablespec.TableSpec {
	switch data["function"] {
	case "constant":
		columnType := c.ColumnTypeString
		switch data["fieldType"] {
		case "integer":
			columnType = c.ColumnTypeInteger
		case "float":
			columnType = c.ColumnTypeFloat
		case "date":
			columnType = c.ColumnTypeTimestamp
		}
		return spec.WithColumn(data["fieldName"], columnType)
	case "upper", "lower", "trim":
		if rf := data["resultField"]; rf != "" {
			return spec.WithColumn(rf, c.ColumnTypeString)
		}
		return spec
	case "regexpReplace", "jsonLogic":
		return spec.WithColumn(data["resultField"], c.ColumnTypeString)
	default:
		return spec
	}
}

package components

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/diegoholiveira/jsonlogic"
	c "github.com/dmorley/colsnap/constants"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
	"github.com/pkg/errors"
)

type mapColumnMappers map[string]columnMapperSetupFunc
type columnMapperSetupFunc func(log logger.Logger, cfg map[string]string) (columnMapperFunc, error)
type columnMapperFunc func(data stream.Record) (stream.Record, error)

const (
	columnMapperUpper         = "Upper"
	columnMapperLower         = "Lower"
	columnMapperTrim          = "Trim"
	columnMapperAddConstant   = "AddConstant"
	columnMapperRegexpReplace = "RegexpReplace"
	columnMapperJsonLogic     = "JsonLogic"
)

// Per-step policy when a mapper function fails on a row.
const (
	onErrorAbort = "abort" // default: the step gives up on the first bad row.
	onErrorSkip  = "skip"  // the bad row is dropped and the step continues.
)

var columnMappers = mapColumnMappers{
	columnMapperUpper:         setupUpper,
	columnMapperLower:         setupLower,
	columnMapperTrim:          setupTrim,
	columnMapperAddConstant:   setupAddConstant,
	columnMapperRegexpReplace: setupRegexpReplace,
	columnMapperJsonLogic:     setupJsonLogicMapper,
}

type ColumnMapperConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Steps          []ComponentStep
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewColumnMapper uses ColumnMapperConfig to map column values in records read from InputChan.
// Supply a slice of map step actions in cfg.Steps, where:
// Steps.Type is one of the entries in mapColumnMappers to lookup a map function.
// Steps.Data is a map of further config values to supply to the chosen map function.
// Steps.Data["onError"] selects the per-step failure policy, "abort" (default) or "skip".
func NewColumnMapper(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*ColumnMapperConfig)
	// Setup all column mapper functions.
	mappers := make([]columnMapperFunc, len(cfg.Steps))
	policies := make([]string, len(cfg.Steps))
	var err error
	for idx, step := range cfg.Steps { // for each requested column mapper...
		setupMapperFunc, ok := columnMappers[step.Type]
		if !ok {
			cfg.Log.Panic("unable to find column mapper using name ", step.Type)
		}
		policies[idx], err = getOnErrorPolicy(step.Data)
		if err != nil {
			cfg.Log.Panic(err)
		}
		// Set up the mapper func and save it.
		mappers[idx], err = setupMapperFunc(cfg.Log, step.Data)
		if err != nil {
			cfg.Log.Panic(err)
		}
	}
	// Setup outputs.
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
	// Process rows.
	go func() {
		if cfg.PanicHandlerFn != nil {
			defer cfg.PanicHandlerFn()
		}
		if cfg.WaitCounter != nil {
			cfg.WaitCounter.Add()
			defer cfg.WaitCounter.Done()
		}
		rowCount := int64(0)
		if cfg.StepWatcher != nil { // if we have been given a StepWatcher that can watch our rowCount and output channel length...
			cfg.StepWatcher.StartWatching(&rowCount, &outputChan)
			defer cfg.StepWatcher.StopWatching()
		}
		cfg.Log.Info(cfg.Name, " is running")
		var controlAction ControlAction
		for { // for each row of input...
			select {
			case rec, ok := <-cfg.InputChan:
				if !ok { // if the input channel was closed...
					cfg.InputChan = nil // disable this case.
				} else { // else we have input to process...
					skipRecord := false
					for idx := range mappers { // for each mapper function...
						rec, err = mappers[idx](rec)
						if err != nil { // if the mapper failed on this row...
							if policies[idx] == onErrorSkip {
								cfg.Log.Warn(cfg.Name, " dropping record after ", cfg.Steps[idx].Type, " failure: ", err)
								skipRecord = true
								break
							}
							cfg.Log.Panic(cfg.Name, " aborting due to ", cfg.Steps[idx].Type, " failure: ", err)
						}
					}
					if !skipRecord {
						if rowSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !rowSentOK {
							cfg.Log.Info(cfg.Name, " shutdown")
							return
						}
					}
					atomic.AddInt64(&rowCount, 1) // increment the row count bearing in mind someone else is reporting on its values.
				}
			case controlAction = <-controlChan: // if we were asked to shutdown...
			}
			if cfg.InputChan == nil || controlAction.Action == Shutdown {
				break
			}
		}
		if controlAction.Action == Shutdown { // if we were asked to shutdown...
			controlAction.ResponseChan <- nil // respond that we're done with a nil error.
			cfg.Log.Info(cfg.Name, " shutdown")
			return
		} else { // else we ran out of rows to process...
			close(outputChan) // we're done so close the channel we created.
			cfg.Log.Info(cfg.Name, " complete")
		}
	}()
	return
}

func getOnErrorPolicy(cfg map[string]string) (string, error) {
	p, ok := cfg["onError"]
	if !ok || p == "" {
		return onErrorAbort, nil
	}
	p = strings.ToLower(p)
	if p != onErrorAbort && p != onErrorSkip {
		return "", fmt.Errorf("unsupported onError policy %q; supported policies are '%v' and '%v'", p, onErrorAbort, onErrorSkip)
	}
	return p, nil
}

// setupStringFunc covers the simple single-column string mappers (upper, lower, trim).
// Config keys: fieldName (mandatory) and resultField (optional; defaults to fieldName,
// in which case the source column is replaced in place).
func setupStringFunc(mapperName string, cfg map[string]string, fn func(string) string, log logger.Logger) (columnMapperFunc, error) {
	fieldName, ok := cfg["fieldName"]
	if !ok {
		return nil, fmt.Errorf("missing column mapper configuration; please supply %v with: fieldName", mapperName)
	}
	resultField, ok := cfg["resultField"]
	if !ok || resultField == "" {
		resultField = fieldName
	}
	return func(data stream.Record) (stream.Record, error) {
		if data.DataIsNull(fieldName) { // if the input value is NULL...
			data.SetData(resultField, nil) // NULL maps to NULL.
			return data, nil
		}
		data.SetData(resultField, fn(data.GetDataAsString(log, fieldName)))
		return data, nil
	}, nil
}

func setupUpper(log logger.Logger, cfg map[string]string) (columnMapperFunc, error) {
	return setupStringFunc(columnMapperUpper, cfg, strings.ToUpper, log)
}

func setupLower(log logger.Logger, cfg map[string]string) (columnMapperFunc, error) {
	return setupStringFunc(columnMapperLower, cfg, strings.ToLower, log)
}

func setupTrim(log logger.Logger, cfg map[string]string) (columnMapperFunc, error) {
	return setupStringFunc(columnMapperTrim, cfg, strings.TrimSpace, log)
}

func setupAddConstant(log logger.Logger, cfg map[string]string) (fn columnMapperFunc, err error) {
	errBuilder := strings.Builder{}
	errMsg := ""
	// Assert all input config has been supplied.
	fieldType, ok := cfg["fieldType"]
	if !ok {
		errBuilder.WriteString("fieldType, ")
	}
	fieldName, ok := cfg["fieldName"]
	if !ok {
		errBuilder.WriteString("fieldName, ")
	}
	fieldValString, ok := cfg["fieldValue"]
	if !ok {
		errBuilder.WriteString("fieldValue, ")
	}
	if errBuilder.Len() > 0 {
		errMsg = fmt.Sprintf("missing column mapper configuration; please supply %v with: %v", columnMapperAddConstant, strings.TrimRight(errBuilder.String(), ", "))
	}
	if errMsg != "" { // if there was any error above...
		return nil, errors.New(errMsg)
	}
	// Assert the fieldType is OK.
	var fieldValue interface{}
	switch fieldType {
	case "integer":
		fieldValue, err = strconv.Atoi(fieldValString)
		if err != nil {
			return nil, err
		}
	case "float":
		fieldValue, err = strconv.ParseFloat(fieldValString, 64)
		if err != nil {
			return nil, err
		}
	case "string":
		fieldValue = fieldValString
	case "date":
		fieldValue, err = time.Parse(time.RFC3339, fieldValString) // the format should be like this: "2018-10-28T02:01:01+01:00"
		if err != nil {                                            // if we couldn't parse the supplied date against RFC format...
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported fieldType supplied to %v, %v. supported types are 'string', 'integer', 'float', 'date' (use RFC3339)", columnMapperAddConstant, fieldType)
	}
	// Return the worker function.
	return func(data stream.Record) (stream.Record, error) {
		data.SetData(fieldName, fieldValue)
		return data, nil
	}, nil
}

func setupRegexpReplace(log logger.Logger, cfg map[string]string) (fn columnMapperFunc, err error) {
	errBuilder := strings.Builder{}
	errMsg := ""
	// Validate input config.
	fieldName, ok := cfg["fieldName"]
	if !ok {
		errBuilder.WriteString("fieldName, ")
	}
	regexpMatch, ok := cfg["regexpMatch"]
	if !ok {
		errBuilder.WriteString("regexpMatch, ")
	}
	regexpReplace, ok := cfg["regexpReplace"]
	if !ok {
		errBuilder.WriteString("regexpReplace, ")
	}
	resultField, ok := cfg["resultField"]
	if !ok {
		errBuilder.WriteString("resultField, ")
	}
	if errBuilder.Len() > 0 {
		errMsg = fmt.Sprintf("missing column mapper configuration; please supply %v with: %v", columnMapperRegexpReplace, strings.TrimRight(errBuilder.String(), ", "))
	}
	// Optional config.
	var propagateInput bool
	if p, ok := cfg["propagateInput"]; ok {
		if strings.ToLower(p) == "true" {
			propagateInput = true
		}
	}
	// Validate the regexp.
	r, err2 := regexp.Compile(regexpMatch) // use Golang compile for speed; not POSIX.
	if err2 != nil {                       // if the regexp is bad...
		errMsg = fmt.Sprintf("invalid regular expression '%v'. %v. %v", regexpMatch, err2, errMsg)
	}
	if errMsg != "" { // if there was any error above...
		return nil, errors.New(errMsg)
	}
	// Return RegexpReplace mapper and nil error.
	return func(data stream.Record) (stream.Record, error) {
		// Get input field from the input record.
		fieldVal := data.GetDataAsString(log, fieldName)
		if r.MatchString(fieldVal) { // if we could match using the regexp...
			data.SetData(resultField, r.ReplaceAllString(fieldVal, regexpReplace))
		} else { // else we could not match...
			if propagateInput { // if we should propagate the input value when there is no match...
				data.SetData(resultField, fieldVal)
			} else { // else update resultField with an empty string.
				data.SetData(resultField, "")
			}
		}
		return data, nil
	}, nil
}

// setupJsonLogicMapper returns a columnMapperFunc that evaluates a JSON Logic rule
// against the record's data map and stores the result in resultField.
func setupJsonLogicMapper(log logger.Logger, cfg map[string]string) (columnMapperFunc, error) {
	errBuilder := strings.Builder{}
	errMsg := ""
	result := bytes.Buffer{}
	// Assert all input config has been supplied.
	rule, ok := cfg["rule"]
	if !ok {
		errBuilder.WriteString("rule, ")
	}
	resultField, ok := cfg["resultField"]
	if !ok {
		errBuilder.WriteString("resultField, ")
	}
	if errBuilder.Len() > 0 {
		errMsg = fmt.Sprintf("missing column mapper configuration; please supply %v with: %v", columnMapperJsonLogic, strings.TrimRight(errBuilder.String(), ", "))
	}
	if errMsg != "" { // if there was any error above...
		return nil, errors.New(errMsg)
	}
	if !jsonlogic.IsValid(strings.NewReader(rule)) {
		return nil, fmt.Errorf("invalid %v rule: %v", columnMapperJsonLogic, rule)
	}
	// Return the worker function.
	return func(data stream.Record) (stream.Record, error) {
		if data.RecordIsNil() {
			return stream.NewNilRecord(), nil
		}
		result.Reset()
		if err := applyJsonLogic(data, rule, &result); err != nil {
			return data, err
		}
		// Trim "\n" and enclosing `"` then add the result to the input data.
		val := strings.Trim(strings.TrimSpace(result.String()), `"`)
		data.SetData(resultField, val)
		return data, nil
	}, nil
}

// applyJsonLogic applies the json logic supplied in rule to data.
// It assumes the caller has validated the logic already.
func applyJsonLogic(data stream.Record, rule string, result *bytes.Buffer) error {
	jsonData, err := json.Marshal(data.GetDataMap())
	if err != nil {
		return fmt.Errorf("error marshalling data before applying JSON logic: %v", err)
	}
	err = jsonlogic.Apply(strings.NewReader(rule), strings.NewReader(string(jsonData)), result)
	if err != nil {
		return fmt.Errorf("error applying JSON logic: %v", err)
	}
	return nil
}

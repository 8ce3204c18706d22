package components

import (
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
)

const (
	numericOpSqrt    = "Sqrt"
	numericOpAbs     = "Abs"
	numericOpLog     = "Log"
	numericOpRound   = "Round"
	numericOpScaleBy = "ScaleBy"
)

type NumericTransformConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	Spec           tablespec.TableSpec // used to assert FieldName is declared numeric before any row is processed.
	FieldName      string
	ResultField    string // optional; defaults to FieldName (replace in place).
	Op             string // one of Sqrt, Abs, Log, Round, ScaleBy.
	ScaleFactor    string // mandatory for ScaleBy; parsed as float64.
	Sentinel       string // optional; when set, domain violations produce this value instead of aborting.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewNumericTransform applies an element-wise numeric function to one declared-numeric
// column. The declared column type is checked up front so a misconfigured pipe fails
// before a single row is processed. Domain violations (sqrt of a negative, log of a
// non-positive) abort the step unless a sentinel value is configured, in which case
// the sentinel is written instead. NULL values pass through as NULL.
func NewNumericTransform(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*NumericTransformConfig)
	if cfg.FieldName == "" || cfg.Op == "" {
		cfg.Log.Panic(cfg.Name, " missing numeric transform configuration; please supply fieldName and op")
	}
	colType, err := cfg.Spec.ColumnType(cfg.FieldName)
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	if colType != c.ColumnTypeInteger && colType != c.ColumnTypeFloat { // if the column is not declared numeric...
		cfg.Log.Panic(cfg.Name, " cannot apply numeric op ", cfg.Op, " to column ", cfg.FieldName, " of declared type ", colType)
	}
	resultField := cfg.ResultField
	if resultField == "" {
		resultField = cfg.FieldName
	}
	fn, err := setupNumericFunc(cfg.Op, cfg.ScaleFactor)
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	var sentinel float64
	useSentinel := cfg.Sentinel != ""
	if useSentinel {
		sentinel, err = strconv.ParseFloat(cfg.Sentinel, 64)
		if err != nil {
			cfg.Log.Panic(cfg.Name, " error converting sentinel value '", cfg.Sentinel, "' to a float")
		}
	}
	outputChan = make(chan stream.Record, c.ChanSize)
	controlChan = make(chan ControlAction, 1)
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
					if rec.DataIsNull(cfg.FieldName) { // if the input value is NULL...
						rec.SetData(resultField, nil) // NULL maps to NULL.
					} else {
						val, err := h.GetFloat64FromInterface(rec.GetData(cfg.FieldName))
						if err != nil {
							cfg.Log.Panic(cfg.Name, " column ", cfg.FieldName, " holds a non-numeric value: ", err)
						}
						result, ok := fn(val)
						if !ok { // if the value is outside the op's domain...
							if !useSentinel {
								cfg.Log.Panic(cfg.Name, fmt.Sprintf(" %v is outside the domain of %v for column %v", val, cfg.Op, cfg.FieldName))
							}
							result = sentinel
						}
						rec.SetData(resultField, result)
					}
					if rowSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !rowSentOK {
						cfg.Log.Info(cfg.Name, " shutdown")
						return
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

// setupNumericFunc returns the element-wise function for op.
// The bool result reports whether the input was inside the op's domain.
func setupNumericFunc(op string, scaleFactor string) (func(float64) (float64, bool), error) {
	switch op {
	case numericOpSqrt:
		return func(x float64) (float64, bool) {
			if x < 0 {
				return 0, false
			}
			return math.Sqrt(x), true
		}, nil
	case numericOpAbs:
		return func(x float64) (float64, bool) { return math.Abs(x), true }, nil
	case numericOpLog:
		return func(x float64) (float64, bool) {
			if x <= 0 {
				return 0, false
			}
			return math.Log(x), true
		}, nil
	case numericOpRound:
		return func(x float64) (float64, bool) { return math.Round(x), true }, nil
	case numericOpScaleBy:
		factor, err := strconv.ParseFloat(scaleFactor, 64)
		if err != nil {
			return nil, fmt.Errorf("error converting scale factor '%v' to a float: %v", scaleFactor, err)
		}
		return func(x float64) (float64, bool) { return x * factor, true }, nil
	default:
		return nil, fmt.Errorf("unsupported numeric op %q; supported ops are %v, %v, %v, %v, %v",
			op, numericOpSqrt, numericOpAbs, numericOpLog, numericOpRound, numericOpScaleBy)
	}
}

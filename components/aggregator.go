package components

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/cevaris/ordered_map"
	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
)

const (
	aggFuncSum   = "sum"
	aggFuncCount = "count"
	aggFuncMean  = "mean"
	aggFuncMin   = "min"
	aggFuncMax   = "max"
)

// regexpAggregate matches one "func(column)" term e.g. "sum(amount)".
var regexpAggregate = regexp.MustCompile(`^\s*(\w+)\s*\(\s*(\w+)\s*\)\s*$`)

type aggregateTerm struct {
	funcName    string
	fieldName   string
	resultField string // "<column>_<func>" e.g. amount_sum.
}

// aggAccumulator accumulates one func(column) term for one group.
// NULL input values are skipped so an all-NULL group reports sum 0 / count 0.
type aggAccumulator struct {
	sum   float64
	count int64
	min   float64
	max   float64
	seen  bool // true once a non-NULL value has arrived.
}

type aggGroup struct {
	keyData      map[string]interface{} // group key column values.
	accumulators []*aggAccumulator      // one per configured aggregate term.
}

type AggregatorConfig struct {
	Log            logger.Logger
	Name           string
	InputChan      chan stream.Record
	GroupBy        string // CSV list of group key columns.
	Aggregates     string // CSV list of "func(column)" terms; funcs: sum, count, mean, min, max.
	AggregatesChan chan stream.Record // optional; receives one record per group when the input closes.
	StepWatcher    *stats.StepWatcher
	WaitCounter    ComponentWaiter
	PanicHandlerFn PanicHandlerFunc
}

// NewAggregator computes grouped aggregates over its input without mutating it:
// every input row passes through unchanged while the configured func(column)
// terms accumulate per group key. Groups are kept in first-seen order. When the
// input closes, one read-only record per group is produced onto AggregatesChan
// (when supplied) and logged. NULL values are skipped by every func, so a group
// whose values are all NULL reports sum 0 and count 0.
func NewAggregator(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*AggregatorConfig)
	if cfg.GroupBy == "" || cfg.Aggregates == "" {
		cfg.Log.Panic(cfg.Name, " missing aggregator configuration; please supply groupBy and aggregates")
	}
	groupByFields := h.CsvToStringSliceTrimSpaces(cfg.GroupBy)
	terms, err := parseAggregateTerms(cfg.Aggregates)
	if err != nil {
		cfg.Log.Panic(cfg.Name, " ", err)
	}
	groups := ordered_map.NewOrderedMap() // composite key -> *aggGroup, in first-seen order.
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
					accumulate(cfg.Log, cfg.Name, rec, groupByFields, terms, groups)
					if rowSentOK := safeSend(rec, outputChan, controlChan, sendNilControlResponse); !rowSentOK { // pass the row through unchanged.
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
			emitAggregates(cfg.Log, cfg.Name, groupByFields, terms, groups, cfg.AggregatesChan)
			close(outputChan) // we're done so close the channel we created.
			cfg.Log.Info(cfg.Name, " complete")
		}
	}()
	return
}

func parseAggregateTerms(csv string) ([]aggregateTerm, error) {
	parts := strings.Split(csv, ",")
	terms := make([]aggregateTerm, 0, len(parts))
	for _, part := range parts {
		m := regexpAggregate.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("bad aggregate term %q; expected func(column) e.g. sum(amount)", strings.TrimSpace(part))
		}
		funcName := strings.ToLower(m[1])
		switch funcName {
		case aggFuncSum, aggFuncCount, aggFuncMean, aggFuncMin, aggFuncMax:
		default:
			return nil, fmt.Errorf("unsupported aggregate func %q; supported funcs are %v, %v, %v, %v, %v",
				funcName, aggFuncSum, aggFuncCount, aggFuncMean, aggFuncMin, aggFuncMax)
		}
		terms = append(terms, aggregateTerm{
			funcName:    funcName,
			fieldName:   m[2],
			resultField: m[2] + "_" + funcName,
		})
	}
	return terms, nil
}

// accumulate folds one input row into its group, creating the group on first sight.
func accumulate(log logger.Logger,
	name string,
	rec stream.Record,
	groupByFields []string,
	terms []aggregateTerm,
	groups *ordered_map.OrderedMap,
) {
	// Build the composite group key from the key column values.
	keyBuilder := strings.Builder{}
	for _, fieldName := range groupByFields {
		keyBuilder.WriteString(h.GetStringFromInterface(log, rec.GetData(fieldName)))
		keyBuilder.WriteString("\x1f") // unit separator avoids collisions between adjacent key values.
	}
	key := keyBuilder.String()
	var group *aggGroup
	if g, ok := groups.Get(key); ok { // if we have seen this group before...
		group = g.(*aggGroup)
	} else {
		group = &aggGroup{keyData: make(map[string]interface{}), accumulators: make([]*aggAccumulator, len(terms))}
		for _, fieldName := range groupByFields {
			group.keyData[fieldName] = rec.GetData(fieldName)
		}
		for idx := range terms {
			group.accumulators[idx] = &aggAccumulator{}
		}
		groups.Set(key, group)
	}
	for idx, term := range terms {
		if rec.DataIsNull(term.fieldName) { // if the value is NULL...
			continue // NULLs never contribute to an aggregate.
		}
		val, err := h.GetFloat64FromInterface(rec.GetData(term.fieldName))
		if err != nil {
			log.Panic(name, " column ", term.fieldName, " holds a non-numeric value: ", err)
		}
		acc := group.accumulators[idx]
		acc.sum += val
		acc.count++
		if !acc.seen || val < acc.min {
			acc.min = val
		}
		if !acc.seen || val > acc.max {
			acc.max = val
		}
		acc.seen = true
	}
}

// emitAggregates renders one record per group in first-seen order.
// mean, min and max of an all-NULL group are NULL; sum is 0 and count is 0.
func emitAggregates(log logger.Logger,
	name string,
	groupByFields []string,
	terms []aggregateTerm,
	groups *ordered_map.OrderedMap,
	aggregatesChan chan stream.Record,
) {
	iter := groups.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() { // for each group in first-seen order...
		group := kv.Value.(*aggGroup)
		rec := stream.NewRecord()
		for _, fieldName := range groupByFields {
			rec.SetData(fieldName, group.keyData[fieldName])
		}
		for idx, term := range terms {
			acc := group.accumulators[idx]
			switch term.funcName {
			case aggFuncSum:
				rec.SetData(term.resultField, acc.sum)
			case aggFuncCount:
				rec.SetData(term.resultField, acc.count)
			case aggFuncMean:
				if acc.count > 0 {
					rec.SetData(term.resultField, acc.sum/float64(acc.count))
				} else { // else the group held no non-NULL values...
					rec.SetData(term.resultField, nil)
				}
			case aggFuncMin:
				if acc.seen {
					rec.SetData(term.resultField, acc.min)
				} else {
					rec.SetData(term.resultField, nil)
				}
			case aggFuncMax:
				if acc.seen {
					rec.SetData(term.resultField, acc.max)
				} else {
					rec.SetData(term.resultField, nil)
				}
			}
		}
		log.Info(name, " aggregate: ", rec)
		if aggregatesChan != nil {
			aggregatesChan <- rec
		}
	}
	if aggregatesChan != nil {
		close(aggregatesChan)
	}
}

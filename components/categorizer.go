package components

import (
	"sync/atomic"

	"github.com/cevaris/ordered_map"
	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stats"
	"github.com/dmorley/colsnap/stream"
)

type CategorizerConfig struct {
	Log              logger.Logger
	Name             string
	InputChan        chan stream.Record
	FieldName        string
	ResultField      string // the integer code column; optional, defaults to FieldName + "_code".
	Vocabulary       string // optional CSV of seed terms; codes are assigned in list order from 0.
	ExtendVocabulary bool   // when true, unseen values are appended to the vocabulary; when false they abort the step.
	VocabularyChan   chan stream.Record // optional; receives one term/code record per vocabulary entry when the input closes.
	StepWatcher      *stats.StepWatcher
	WaitCounter      ComponentWaiter
	PanicHandlerFn   PanicHandlerFunc
}

// NewCategorizer reinterprets a string column against a category vocabulary,
// adding an integer code column per row. Unseen values either extend the
// vocabulary with the next free code or abort the step, per configuration.
// The final vocabulary is recorded on the optional VocabularyChan and logged.
// NULL values map to a NULL code and never enter the vocabulary.
func NewCategorizer(i interface{}) (outputChan chan stream.Record, controlChan chan ControlAction) {
	cfg := i.(*CategorizerConfig)
	if cfg.FieldName == "" {
		cfg.Log.Panic(cfg.Name, " missing categorizer configuration; please supply fieldName")
	}
	resultField := cfg.ResultField
	if resultField == "" {
		resultField = cfg.FieldName + "_code"
	}
	vocab := ordered_map.NewOrderedMap() // term -> int code, in declared-then-first-seen order.
	if cfg.Vocabulary != "" {
		for idx, term := range h.CsvToStringSliceTrimSpaces(cfg.Vocabulary) {
			vocab.Set(term, idx)
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
						rec.SetData(resultField, nil)
					} else {
						term := rec.GetDataAsString(cfg.Log, cfg.FieldName)
						code, ok := vocab.Get(term)
						if !ok { // if this value has not been seen before...
							if !cfg.ExtendVocabulary {
								cfg.Log.Panic(cfg.Name, " value '", term, "' in column ", cfg.FieldName, " is not in the category vocabulary")
							}
							code = vocab.Len()
							vocab.Set(term, code)
						}
						rec.SetData(resultField, code)
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
			emitVocabulary(cfg.Log, cfg.Name, cfg.FieldName, vocab, cfg.VocabularyChan)
			close(outputChan) // we're done so close the channel we created.
			cfg.Log.Info(cfg.Name, " complete")
		}
	}()
	return
}

// emitVocabulary logs the final vocabulary and optionally produces one record
// per term onto vocabChan, closing it afterwards.
func emitVocabulary(log logger.Logger, name string, fieldName string, vocab *ordered_map.OrderedMap, vocabChan chan stream.Record) {
	iter := vocab.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		log.Info(name, " vocabulary for column ", fieldName, ": '", kv.Key, "' = ", kv.Value)
		if vocabChan != nil {
			rec := stream.NewRecord()
			rec.SetData("column", fieldName)
			rec.SetData("term", kv.Key)
			rec.SetData("code", kv.Value)
			vocabChan <- rec
		}
	}
	if vocabChan != nil {
		close(vocabChan)
	}
}

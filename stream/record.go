package stream

import (
	"fmt"

	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
)

// Record is used to communicate row data between components.
// Values are the raw scan results, so a nil interface represents a database NULL.
type Record struct {
	data map[string]interface{}
}

// NewRecord creates a new Record, returned by value as records travel over channels by value.
func NewRecord() Record {
	return Record{
		data: make(map[string]interface{}),
	}
}

func NewNilRecord() Record {
	return Record{}
}

func (sr Record) RecordIsNil() bool {
	return len(sr.data) == 0 && sr.data == nil
}

func (sr Record) SetData(name string, value interface{}) {
	sr.data[name] = value
}

func (sr Record) GetData(name string) interface{} {
	val, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("invalid key name %q supplied while trying to fetch value from record: %v", name, sr.data))
	}
	return val
}

// GetDataOk fetches the value for name and reports whether the field exists at all.
func (sr Record) GetDataOk(name string) (interface{}, bool) {
	val, ok := sr.data[name]
	return val, ok
}

// DataIsNull reports whether the named field holds a database NULL.
func (sr Record) DataIsNull(name string) bool {
	val, ok := sr.data[name]
	return !ok || val == nil
}

func (sr Record) GetDataMap() map[string]interface{} {
	return sr.data
}

func (sr Record) GetDataLen() int {
	return len(sr.data)
}

// GetDataAsString converts the named field's value to a string.
func (sr Record) GetDataAsString(log logger.Logger, name string) string {
	v, ok := sr.data[name]
	if !ok {
		panic(fmt.Sprintf("unexpected field %q does not exist in the input stream (bad pipe definition?)", name))
	}
	return h.GetStringFromInterface(log, v)
}

// GetDataKeysAsSlice builds a slice of string values found in sr.data for each of the supplied keys.
func (sr Record) GetDataKeysAsSlice(log logger.Logger, keys []string) []string {
	retval := make([]string, 0, len(keys))
	for _, k := range keys {
		retval = append(retval, sr.GetDataAsString(log, k))
	}
	return retval
}

// CopyTo copies all fields from sr into the target record t.
func (sr Record) CopyTo(t Record) {
	for k, v := range sr.data {
		t.SetData(k, v)
	}
}

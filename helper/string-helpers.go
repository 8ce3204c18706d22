package helper

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dmorley/colsnap/logger"
)

// CsvToStringSliceTrimSpaces converts a string of the form 'f1, f2, f3' into
// a slice of string values with leading/trailing spaces removed.
func CsvToStringSliceTrimSpaces(s string) []string {
	tokens := strings.Split(s, ",")
	for x := range tokens {
		tokens[x] = strings.TrimSpace(tokens[x])
	}
	return tokens
}

// GetStringFromInterface converts an interface{} value to a string.
// Database drivers return a narrow set of scan types so anything else panics.
func GetStringFromInterface(log logger.Logger, input interface{}) (retval string) {
	switch v := input.(type) {
	case int, int8, int16, int32, int64, uint8:
		retval = fmt.Sprintf("%d", v)
	case string:
		retval = v
	case float32:
		retval = strconv.FormatFloat(float64(v), 'f', -1, 32) // 'f' preserves all decimal places without an exponent.
	case float64:
		retval = strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		retval = v.UTC().Format(time.RFC3339)
	case []uint8:
		retval = string(v)
	case bool:
		retval = fmt.Sprintf("%v", v)
	case nil:
		retval = ""
	default:
		log.Panic("unhandled type while fetching string from interface: type = ", reflect.TypeOf(input), "; value = ", input)
	}
	return
}

// GetFloat64FromInterface converts a scanned database value to float64.
// Strings and byte slices are parsed so drivers that return text for numerics still work.
func GetFloat64FromInterface(input interface{}) (float64, error) {
	switch v := input.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case []uint8:
		return strconv.ParseFloat(string(v), 64)
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("unable to convert value of type %v to float64", reflect.TypeOf(input))
	}
}

// GetInt64FromInterface converts a scanned database value to int64.
func GetInt64FromInterface(input interface{}) (int64, error) {
	switch v := input.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64: // some drivers scan integral columns as float64.
		return int64(v), nil
	case []uint8:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unable to convert value of type %v to int64", reflect.TypeOf(input))
	}
}

// InterfaceToString converts a slice of scanned database values to strings,
// suitable for CSV output. NULL values become empty strings.
func InterfaceToString(src []interface{}) []string {
	retval := make([]string, len(src))
	for i, v := range src {
		switch x := v.(type) {
		case nil:
			retval[i] = ""
		case string:
			retval[i] = x
		case []uint8:
			retval[i] = string(x)
		case float64:
			retval[i] = strconv.FormatFloat(x, 'g', -1, 64)
		case float32:
			retval[i] = strconv.FormatFloat(float64(x), 'g', -1, 32)
		case time.Time:
			retval[i] = x.UTC().Format(time.RFC3339)
		default:
			retval[i] = fmt.Sprintf("%v", x)
		}
	}
	return retval
}

// GetTrueFalseStringAsBool trims spaces from s and reports whether it case-insensitively equals "true".
func GetTrueFalseStringAsBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

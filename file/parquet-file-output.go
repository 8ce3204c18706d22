package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"time"

	c "github.com/dmorley/colsnap/constants"
	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/pipeerr"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetFileOutput serializes one table's records to a single Parquet file.
// Rows are written to a hidden temp file that is renamed into place on Close,
// so a crashed run never leaves a half-written file under the final name.
type ParquetFileOutput struct {
	log       logger.Logger
	spec      tablespec.TableSpec
	finalPath string
	tmpPath   string
	fw        source.ParquetFile
	pw        *writer.JSONWriter
	rowCount  int64
}

// NewParquetFileOutput opens the temp file and Parquet writer for the given table spec.
// The schema is derived from the declared column types; an undeclarable type is a
// SchemaError before any row is written. An unwritable directory is an IOError.
func NewParquetFileOutput(log logger.Logger, outputDir string, spec tablespec.TableSpec) (*ParquetFileOutput, error) {
	schemaDef, err := buildParquetSchema(spec)
	if err != nil {
		return nil, err
	}
	p := &ParquetFileOutput{
		log:       log,
		spec:      spec,
		finalPath: path.Join(outputDir, spec.Name+".parquet"),
		tmpPath:   path.Join(outputDir, "."+spec.Name+".parquet.tmp"),
	}
	log.Debug("ParquetFileOutput schema for table ", spec.Name, ": ", schemaDef)
	p.fw, err = local.NewLocalFileWriter(p.tmpPath)
	if err != nil {
		return nil, pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("unable to create output file for table %v", spec.Name))
	}
	p.pw, err = writer.NewJSONWriter(schemaDef, p.fw, 4)
	if err != nil {
		_ = p.fw.Close()
		_ = os.Remove(p.tmpPath)
		return nil, pipeerr.Wrap(pipeerr.SchemaError, err, fmt.Sprintf("unable to create Parquet writer for table %v", spec.Name))
	}
	p.pw.CompressionType = parquet.CompressionCodec_SNAPPY
	log.Info("Writing Parquet file for table ", spec.Name, " to ", p.finalPath)
	return p, nil
}

// WriteRecord coerces one record to the declared column types and writes it.
func (p *ParquetFileOutput) WriteRecord(rec stream.Record) error {
	row := make(map[string]interface{}, len(p.spec.Columns))
	for _, col := range p.spec.Columns {
		val, err := coerceParquetValue(p.log, rec, col)
		if err != nil {
			return err
		}
		row[col.Name] = val
	}
	// The JSON writer expects one marshalled row per call.
	b, err := json.Marshal(row)
	if err != nil {
		return pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("error marshalling row for table %v", p.spec.Name))
	}
	if err := p.pw.Write(string(b)); err != nil {
		return pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("error writing row for table %v", p.spec.Name))
	}
	p.rowCount++
	return nil
}

// Close finalizes the Parquet footer and renames the temp file into place.
// A zero-row table still produces a valid file carrying the schema.
func (p *ParquetFileOutput) Close() (string, int64, error) {
	if err := p.pw.WriteStop(); err != nil {
		_ = p.fw.Close()
		_ = os.Remove(p.tmpPath)
		return "", 0, pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("error finalizing Parquet file for table %v", p.spec.Name))
	}
	if err := p.fw.Close(); err != nil {
		_ = os.Remove(p.tmpPath)
		return "", 0, pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("error closing Parquet file for table %v", p.spec.Name))
	}
	if err := os.Rename(p.tmpPath, p.finalPath); err != nil {
		_ = os.Remove(p.tmpPath)
		return "", 0, pipeerr.Wrap(pipeerr.IOError, err, fmt.Sprintf("error renaming Parquet file into place for table %v", p.spec.Name))
	}
	p.log.Info("Wrote ", p.rowCount, " rows for table ", p.spec.Name, " to ", p.finalPath)
	return p.finalPath, p.rowCount, nil
}

// Abort discards the temp file. Safe to defer alongside a successful Close.
func (p *ParquetFileOutput) Abort() {
	_ = p.fw.Close()
	_ = os.Remove(p.tmpPath)
}

// buildParquetSchema renders the dynamic JSON schema for the JSON writer
// from the declared column types, in specification order.
func buildParquetSchema(spec tablespec.TableSpec) (string, error) {
	fields := make([]map[string]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		fieldType, err := parquetFieldType(col.Type)
		if err != nil {
			return "", pipeerr.Wrap(pipeerr.SchemaError, err, fmt.Sprintf("unable to build Parquet schema for table %v", spec.Name))
		}
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", col.Name, fieldType),
		})
	}
	out := map[string]interface{}{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", pipeerr.Wrap(pipeerr.SchemaError, err, "unable to marshal Parquet schema")
	}
	return string(b), nil
}

func parquetFieldType(columnType string) (string, error) {
	switch columnType {
	case c.ColumnTypeString:
		return "type=BYTE_ARRAY, convertedtype=UTF8", nil
	case c.ColumnTypeInteger:
		return "type=INT64", nil
	case c.ColumnTypeFloat:
		return "type=DOUBLE", nil
	case c.ColumnTypeBoolean:
		return "type=BOOLEAN", nil
	case c.ColumnTypeTimestamp:
		return "type=INT64, convertedtype=TIMESTAMP_MILLIS", nil
	default:
		return "", fmt.Errorf("column type %q has no Parquet representation", columnType)
	}
}

// coerceParquetValue converts one column value to the JSON shape matching its
// declared type. NULLs stay NULL for every type.
func coerceParquetValue(log logger.Logger, rec stream.Record, col tablespec.ColumnSpec) (interface{}, error) {
	if rec.DataIsNull(col.Name) {
		return nil, nil
	}
	val := rec.GetData(col.Name)
	switch col.Type {
	case c.ColumnTypeString:
		return h.GetStringFromInterface(log, val), nil
	case c.ColumnTypeInteger:
		i, err := h.GetInt64FromInterface(val)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.TransformError, err, fmt.Sprintf("column %v is declared integer", col.Name))
		}
		return i, nil
	case c.ColumnTypeFloat:
		f, err := h.GetFloat64FromInterface(val)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.TransformError, err, fmt.Sprintf("column %v is declared float", col.Name))
		}
		return f, nil
	case c.ColumnTypeBoolean:
		b, err := coerceBool(val)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.TransformError, err, fmt.Sprintf("column %v is declared boolean", col.Name))
		}
		return b, nil
	case c.ColumnTypeTimestamp:
		t, err := coerceTime(log, val)
		if err != nil {
			return nil, pipeerr.Wrap(pipeerr.TransformError, err, fmt.Sprintf("column %v is declared timestamp", col.Name))
		}
		return t.UnixNano() / int64(time.Millisecond), nil
	default:
		return nil, pipeerr.New(pipeerr.SchemaError, "column %v has unsupported declared type %v", col.Name, col.Type)
	}
}

func coerceBool(val interface{}) (bool, error) {
	switch v := val.(type) {
	case bool:
		return v, nil
	case int64: // drivers without a native boolean return 0/1.
		return v != 0, nil
	case string:
		return v == "true" || v == "1", nil
	default:
		return false, fmt.Errorf("cannot interpret %T as a boolean", val)
	}
}

func coerceTime(log logger.Logger, val interface{}) (time.Time, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case string, []uint8:
		s := h.GetStringFromInterface(log, v)
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
	default:
		return time.Time{}, fmt.Errorf("cannot interpret %T as a timestamp", val)
	}
}

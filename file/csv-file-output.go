package file

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"regexp"

	h "github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/stream"
	"github.com/dmorley/colsnap/tablespec"
)

// CSVFileOutput is a Writer that outputs one table's records to an OS file that rotates.
// The header row and field order come from the table specification, so the CSV columns
// always match the declared column order. NULL values render as empty strings.
type CSVFileOutput struct {
	csvWriter         *csv.Writer
	log               logger.Logger
	spec              tablespec.TableSpec
	directory         string // empty string means use OS temp space with a generated directory.
	extension         string
	currentSuffixID   int
	currentName       string
	file              *os.File
	gzWriter          *gzip.Writer
	fWriter           *bufio.Writer
	useGzip           bool
	maxFileRows       int
	currentRowCount   int
	totalRowCount     int
	maxFileBytes      int
	currentBytesCount int
	needNewCSVFile    bool
	needFileCleanup   bool
	needCSVCleanup    bool
	ListOfOutputFiles []string
}

// NewCSVFileOutput creates a new CSV file struct for the given table specification.
// Supply a valid directory or empty string to use ioutil.TempDir().
// Set maxFileRows to the number of rows you want per CSV file (excluding the header) or 0 for a single file.
// Set maxFileBytes to the approx number of bytes you want per CSV file - only checked per row written.
// Setting maxFileBytes > 0 causes each row to be flushed so this is slower.
// Setting useGzip will use gzip compression and make the extension end with '.gz'.
func NewCSVFileOutput(log logger.Logger, outputDirectory string, spec tablespec.TableSpec, maxFileRows int, maxFileBytes int, useGzip bool) CSVFileOutput {
	f := CSVFileOutput{}
	f.log = log
	f.spec = spec
	// Create output directory using temp space if needed.
	if outputDirectory == "" {
		var err error
		f.directory, err = ioutil.TempDir("", "csv-output-")
		if err != nil {
			log.Panic("Error creating temp directory for CSV files.")
		}
	} else {
		f.directory = outputDirectory
	}
	f.extension = "csv"
	f.maxFileRows = maxFileRows
	f.maxFileBytes = maxFileBytes
	f.useGzip = useGzip
	if useGzip { // if we should use gzip...
		r := regexp.MustCompile(`^(.*?)(\.*)(?i)(gzip|gz){0,}$`) // remove multiple leading '.' and trailing (case insensitive) "gz|gzip"
		f.extension = r.ReplaceAllString(f.extension, "$1.gz")
	}
	f.currentSuffixID = 0
	f.currentRowCount = 0
	f.currentBytesCount = 0
	f.totalRowCount = 0
	f.needNewCSVFile = true
	f.needFileCleanup = false
	f.needCSVCleanup = false
	log.Debug("CSVFileOutput table=", spec.Name, "; extension=", f.extension, "; maxFileRows=", f.maxFileRows, "; maxFileBytes=", f.maxFileBytes, "; useGzip=", f.useGzip)
	return f
}

// Write uses os.File.Write to write to the file so this struct still implements the core io.Writer interface.
// Maintains a counter of the number of bytes written to the CSV file.
// Signals that we need to rotate the CSV file if f.maxFileBytes > 0.
func (f *CSVFileOutput) Write(p []byte) (n int, err error) {
	if f.useGzip { // if we should write to a gzip file...
		n, err = f.fWriter.Write(p)
	} else { // else write directly...
		n, err = f.file.Write(p)
	}
	f.currentBytesCount += n
	if rotateCheck(f.maxFileBytes, f.currentBytesCount) {
		f.needNewCSVFile = true
	}
	return n, err
}

// MustWriteRecord writes the record's values in specification column order.
// Return fileName if a new file is created else empty string "".
func (f *CSVFileOutput) MustWriteRecord(rec stream.Record) (fileName string) {
	record := make([]string, 0, len(f.spec.Columns))
	for _, col := range f.spec.Columns {
		if rec.DataIsNull(col.Name) { // if the value is NULL...
			record = append(record, "") // NULL renders as an empty string.
		} else {
			record = append(record, h.GetStringFromInterface(f.log, rec.GetData(col.Name)))
		}
	}
	return f.mustWriteToCSV(record)
}

// mustWriteToCSV writes record to the CSV file, rotating first when flagged.
func (f *CSVFileOutput) mustWriteToCSV(record []string) (fileName string) {
	f.log.Trace("Writing record...", record)
	if f.needNewCSVFile {
		f.closeCSVFileAndReset()
		f.createNewCSVWriter()
		fileName = f.file.Name()
		// Write the header row from the specification.
		f.log.Trace("Writing file header: ", f.spec.ColumnNames())
		if err := f.csvWriter.Write(f.spec.ColumnNames()); err != nil {
			f.log.Panic("Unable to write header to CSV file.")
		}
	}
	if err := f.csvWriter.Write(record); err != nil {
		f.log.Panic("Unable to write to CSV file.")
	}
	if f.maxFileBytes > 0 { // if we are checking file size limits...
		// Flush each line so we can accurately check bytes written.
		// This causes f.Write() to be called, which maintains the count.
		// Expensive!
		f.csvWriter.Flush()
	}
	// Count rows and signal that we need a new file if we are required to rotate the output file.
	f.currentRowCount++
	f.totalRowCount++
	if rotateCheck(f.maxFileRows, f.currentRowCount) { // if we need to rotate the output file after N rows...
		f.needNewCSVFile = true
	}
	return
}

// EnsureFileExists forces file creation for tables whose result set is empty,
// so a zero-row table still produces a file holding the header.
func (f *CSVFileOutput) EnsureFileExists() {
	if f.needNewCSVFile && f.totalRowCount == 0 {
		f.closeCSVFileAndReset()
		f.createNewCSVWriter()
		if err := f.csvWriter.Write(f.spec.ColumnNames()); err != nil {
			f.log.Panic("Unable to write header to CSV file.")
		}
	}
}

// TotalRowCount reports the number of data rows written across all files so far.
func (f *CSVFileOutput) TotalRowCount() int {
	return f.totalRowCount
}

func rotateCheck(maxCount int, currentCount int) bool {
	return maxCount > 0 && currentCount >= maxCount
}

// Cleanup can be deferred by the caller to flush the CSV Writer and close the OS file.
func (f *CSVFileOutput) Cleanup() {
	f.closeCSVFileAndReset()
}

func (f *CSVFileOutput) fileFlush() {
	f.csvWriter.Flush()
	if f.useGzip { // if we should flush the bufio writer...
		if err := f.fWriter.Flush(); err != nil {
			f.log.Panic(err)
		}
		if err := f.gzWriter.Flush(); err != nil { // if the gzip file couldn't be flushed...
			f.log.Panic(err)
		}
	}
}

func (f *CSVFileOutput) fileCleanup() {
	if f.useGzip { // if we should close the gzip first...
		if err := f.gzWriter.Close(); err != nil { // if the gzip didn't close OK...
			f.log.Panic(err)
		}
	}
	if err := f.file.Close(); err != nil { // if the file didn't close OK...
		f.log.Panic("unable to close OS file: ", f.currentName, "; ", err)
	}
}

// closeCSVFileAndReset will flush the CSV writer and close the OS file.
// It will flag that a new file is required at next write time.
func (f *CSVFileOutput) closeCSVFileAndReset() {
	if f.needCSVCleanup {
		f.fileFlush()
		f.needCSVCleanup = false
	}
	if f.needFileCleanup {
		f.fileCleanup()
		f.needFileCleanup = false
	}
	// Request a new CSV file be created the next time write is called.
	f.needNewCSVFile = true
	// Reset counters.
	f.currentRowCount = 0
	f.currentBytesCount = 0
}

func (f *CSVFileOutput) createNewCSVWriter() {
	f.getNextFileName()
	f.log.Info("Creating new CSV file '", f.currentName, "'")
	var err error
	f.file, err = os.Create(f.currentName)
	if err != nil {
		f.log.Panic("Unable to create OS file with name: ", f.currentName)
	}
	if f.useGzip { // if we should use gzip...
		f.gzWriter = gzip.NewWriter(f.file)
		f.fWriter = bufio.NewWriter(f.gzWriter) // now we must Write() to this instead of the os file.
	}
	f.needFileCleanup = true
	f.csvWriter = csv.NewWriter(f)
	f.needCSVCleanup = true
	f.needNewCSVFile = false
}

// getNextFileName generates a new file name in currentName in this struct.
// It also stores the history of these files in ListOfOutputFiles.
func (f *CSVFileOutput) getNextFileName() {
	f.currentSuffixID++
	f.currentName = path.Join(f.directory, fmt.Sprintf("%v_%06d.%v", f.spec.Name, f.currentSuffixID, f.extension))
	f.ListOfOutputFiles = append(f.ListOfOutputFiles, f.currentName)
}

package actions

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmorley/colsnap/helper"
	"github.com/dmorley/colsnap/logger"
	"github.com/dmorley/colsnap/rdbms"
	"github.com/dmorley/colsnap/rdbms/shared"
	"golang.org/x/net/context"
)

type QueryConfig struct {
	Connections      shared.ConnectionGetter
	ConnectionName   string
	Query            string
	PrintHeader      bool
	DryRun           bool
	LogLevel         string
	StackDumpOnPanic bool
}

// sqlHandler writes query results to stdout as CSV lines.
type sqlHandler struct {
	printHeader bool
}

func (s *sqlHandler) HandleHeader(i []interface{}) error {
	if s.printHeader {
		w := csv.NewWriter(os.Stdout)
		if err := w.Write(helper.InterfaceToString(i)); err != nil {
			return fmt.Errorf("error outputting SQL header: %v", err)
		}
		w.Flush()
	}
	return nil
}

func (s *sqlHandler) HandleRow(i []interface{}) error {
	w := csv.NewWriter(os.Stdout)
	if err := w.Write(helper.InterfaceToString(i)); err != nil {
		return fmt.Errorf("error outputting SQL row: %v", err)
	}
	w.Flush()
	return nil
}

// RunQuery executes an ad-hoc SQL statement against a named connection and
// prints the results. Interrupts cancel the fetch loop.
func RunQuery(cfg *QueryConfig) error {
	var err error
	if cfg.DryRun {
		fmt.Println(cfg.Query)
		return nil
	}
	log := logger.NewLogger("colsnap", cfg.LogLevel, cfg.StackDumpOnPanic)
	conn, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return err
	}
	db, err := rdbms.OpenDbConnection(log, conn)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	h := sqlHandler{printHeader: cfg.PrintHeader}
	// Handle interrupts.
	chanQuit := make(chan os.Signal, 2)
	chanSql := make(chan struct{}, 1)
	signal.Notify(chanQuit, os.Interrupt, syscall.SIGTERM)
	go func() {
		err = rdbms.SqlQuery(ctx, log, db, cfg.Query, &h)
		chanSql <- struct{}{}
	}()
	// Wait for SQL or interrupt.
	select {
	case <-chanQuit: // if we were interrupted...
		fmt.Println("\nUser abort. Stopping SQL execution...")
		cancelFn()
		select {
		case <-time.After(5 * time.Second): // timeout.
			fmt.Println("Timeout waiting for SQL to end - aborted")
		case <-chanSql: // sql ended.
		}
		return nil
	case <-chanSql: // SQL ended.
	}
	return err
}

package oraclewriter

import (
	"context"
	"database/sql"
	"fmt"

	// godror is the ODPI-C-based database/sql driver for Oracle. No Oracle
	// client exists anywhere in the retrieved corpus; this driver is named
	// rather than grounded, per the out-of-pack dependency convention.
	_ "github.com/godror/godror"
)

const (
	operationInsertSQL = `INSERT INTO XSCADA_OPERATION (TIME, NAME, VALUE) VALUES (:1, :2, :3)`
	tagLogInsertSQL    = `INSERT INTO XSCADA_DATATAG_LOG (ID, CTIME, OTIME, DATATAG_NAME, DATATAG_TYPE, VALUE_STR, VALUE_NUM, VALUE_RAW)
		VALUES (XSCADA_DATATAG_LOG_SEQ.NEXTVAL, :1, :2, :3, :4, :5, :6, :7)`
)

// GodrorDB is the OracleDB implementation backed by database/sql and the
// godror driver. Partial-row failures are surfaced by executing each row
// as its own statement within one transaction and recording per-row errors,
// rather than relying on an executemany-with-batch-errors extension the
// database/sql driver surface does not expose.
type GodrorDB struct {
	pool *sql.DB
}

// DialGodror opens a connection pool against dsn (an EZCONNECT or TNS
// string built from ORACLE_HOST/ORACLE_PORT/ORACLE_SERVICE_NAME) with the
// configured min/max pool size.
func DialGodror(dsn string, poolMin, poolMax int) (*GodrorDB, error) {
	pool, err := sql.Open("godror", dsn)
	if err != nil {
		return nil, fmt.Errorf("oraclewriter: open godror pool: %w", err)
	}
	pool.SetMaxOpenConns(poolMax)
	pool.SetMaxIdleConns(poolMin)
	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("oraclewriter: ping oracle: %w", err)
	}
	return &GodrorDB{pool: pool}, nil
}

// Close releases the pool.
func (d *GodrorDB) Close() error {
	return d.pool.Close()
}

func (d *GodrorDB) InsertOperations(ctx context.Context, rows []OperationRow) ([]RowError, error) {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("oraclewriter: begin tx: %w", err)
	}

	var rowErrs []RowError
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, operationInsertSQL, row.Time, row.Name, row.Value); err != nil {
			rowErrs = append(rowErrs, RowError{Offset: i, Err: err})
		}
	}

	if len(rowErrs) == len(rows) && len(rows) > 0 {
		tx.Rollback()
		return rowErrs, fmt.Errorf("oraclewriter: all %d operation rows failed", len(rows))
	}
	if err := tx.Commit(); err != nil {
		return rowErrs, fmt.Errorf("oraclewriter: commit operation batch: %w", err)
	}
	return rowErrs, nil
}

func (d *GodrorDB) InsertTagLogs(ctx context.Context, rows []TagLogRow) ([]RowError, error) {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("oraclewriter: begin tx: %w", err)
	}

	var rowErrs []RowError
	for i, row := range rows {
		if _, err := tx.ExecContext(ctx, tagLogInsertSQL,
			row.CTime, row.OTime, row.Name, row.Type, row.ValueStr, row.ValueNum, row.ValueRaw); err != nil {
			rowErrs = append(rowErrs, RowError{Offset: i, Err: err})
		}
	}

	if len(rowErrs) == len(rows) && len(rows) > 0 {
		tx.Rollback()
		return rowErrs, fmt.Errorf("oraclewriter: all %d tag-log rows failed", len(rows))
	}
	if err := tx.Commit(); err != nil {
		return rowErrs, fmt.Errorf("oraclewriter: commit tag-log batch: %w", err)
	}
	return rowErrs, nil
}

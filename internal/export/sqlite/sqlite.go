// Package sqlite writes exported aggregates into a SQLite database for
// offline analysis with standard tooling.
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redlytics/redlytics/internal/export/types"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const fileName = "aggregates.db"

// Exporter handles exporting aggregate records to a SQLite database.
type Exporter struct {
	outDir string
}

// New creates a new SQLite exporter instance.
func New(outDir string) *Exporter {
	return &Exporter{outDir: outDir}
}

// Export writes the records to aggregates.db, replacing any previous file.
func (e *Exporter) Export(records []*types.Record) error {
	path := filepath.Join(e.outDir, fileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file %s: %w", fileName, err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate|sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}
	defer conn.Close()

	err = sqlitex.Execute(conn, `
		CREATE TABLE aggregates (
			metric TEXT NOT NULL,
			month TEXT NOT NULL,
			member TEXT NOT NULL,
			score INTEGER NOT NULL,
			PRIMARY KEY (metric, month, member)
		)
	`, nil)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Insert records in batches
	const batchSize = 1000
	for i := 0; i < len(records); i += batchSize {
		end := min(i+batchSize, len(records))

		if err := sqlitex.Execute(conn, "BEGIN TRANSACTION", nil); err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		for _, record := range records[i:end] {
			err := sqlitex.Execute(conn,
				"INSERT INTO aggregates (metric, month, member, score) VALUES (?, ?, ?, ?)",
				&sqlitex.ExecOptions{
					Args: []any{record.Metric, record.Month, record.Member, record.Score},
				})
			if err != nil {
				return fmt.Errorf("failed to insert record: %w", err)
			}
		}

		if err := sqlitex.Execute(conn, "COMMIT", nil); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	return nil
}

// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db stores allocator benchmark runs in a SQL database.
package db

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/cantrip-os/allocperf/allocfmt"
	"golang.org/x/net/context"
)

// DB is a high-level interface to a database of runs. It's safe for
// concurrent use by multiple goroutines.
type DB struct {
	sql *sql.DB // underlying database connection
	// prepared statements
	insertRun    *sql.Stmt
	insertRecord *sql.Stmt
	insertSlab   *sql.Stmt
}

// ErrNotFound is returned by LoadRun and DeleteRun for an unknown run
// ID.
var ErrNotFound = errors.New("run not found")

// OpenSQL creates a DB backed by a SQL database. The parameters are
// the same as the parameters for sql.Open. Only mysql and sqlite3 are
// explicitly supported; other database engines will receive MySQL
// query syntax which may or may not be compatible.
func OpenSQL(driverName, dataSourceName string) (*DB, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if hook := openHooks[driverName]; hook != nil {
		if err := hook(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	d := &DB{sql: db}
	if err := d.createTables(driverName); err != nil {
		db.Close()
		return nil, err
	}
	if err := d.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

var openHooks = make(map[string]func(*sql.DB) error)

// RegisterOpenHook registers a hook to be called after opening a connection to driverName.
// This is used by the sqlite3 package to register a ConnectHook.
// It must be called from an init function.
func RegisterOpenHook(driverName string, hook func(*sql.DB) error) {
	openHooks[driverName] = hook
}

// createTmpl is the template used to prepare the CREATE statements
// for the database. It is evaluated with . as a map containing one
// entry whose key is the driver name.
var createTmpl = template.Must(template.New("create").Parse(`
CREATE TABLE IF NOT EXISTS Runs (
	RunID {{if .sqlite3}}INTEGER PRIMARY KEY AUTOINCREMENT{{else}}SERIAL PRIMARY KEY AUTO_INCREMENT{{end}},
	FileName VARCHAR(1024),
	Label VARCHAR(255),
	Marker VARCHAR(255),
	LineCount BIGINT,
	DropCount BIGINT
);
CREATE TABLE IF NOT EXISTS Records (
	RunID BIGINT UNSIGNED,
	Seq BIGINT UNSIGNED,
	Variant VARCHAR(64),
	Idx BIGINT,
	BytesRequested BIGINT,
	BytesInUse BIGINT,
	BytesFree BIGINT,
	HasBytesFree BOOLEAN,
	Allocation BOOLEAN,
	InstructionCount BIGINT,
	SlabResets BIGINT,
	UntypedTooSmall BIGINT,
	OOM BIGINT,
	LHSFragmentation BIGINT,
	InBetweenFragmentation BIGINT,
	PRIMARY KEY (RunID, Seq),
	FOREIGN KEY (RunID) REFERENCES Runs(RunID) ON UPDATE CASCADE ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS Slabs (
	RunID BIGINT UNSIGNED,
	Seq BIGINT UNSIGNED,
	Slab INT,
	LHSFragmentation BIGINT,
	InBetweenFragmentation BIGINT,
	Occupied BIGINT,
	Available BIGINT,
	PRIMARY KEY (RunID, Seq, Slab),
	FOREIGN KEY (RunID, Seq) REFERENCES Records(RunID, Seq) ON UPDATE CASCADE ON DELETE CASCADE
);
{{if .sqlite3}}
CREATE INDEX IF NOT EXISTS RunsLabel ON Runs(Label);
{{else}}
CREATE INDEX RunsLabel ON Runs(Label);
{{end}}
`))

// createTables creates any missing tables on the connection in
// db.sql. driverName is the same driver name passed to sql.Open and
// is used to select the correct syntax.
func (db *DB) createTables(driverName string) error {
	var buf bytes.Buffer
	if err := createTmpl.Execute(&buf, map[string]bool{driverName: true}); err != nil {
		return err
	}
	for _, q := range strings.Split(buf.String(), ";") {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if _, err := db.sql.Exec(q); err != nil {
			if driverName != "sqlite3" && strings.HasPrefix(strings.TrimSpace(q), "CREATE INDEX") && isDuplicateKey(err) {
				continue
			}
			return fmt.Errorf("create table: %v", err)
		}
	}
	return nil
}

// isDuplicateKey reports whether err is MySQL's "Duplicate key name"
// error, which CREATE INDEX returns when the index already exists.
func isDuplicateKey(err error) bool {
	return strings.Contains(err.Error(), "Error 1061")
}

// prepareStatements calls db.sql.Prepare on reusable SQL statements.
func (db *DB) prepareStatements() error {
	var err error
	db.insertRun, err = db.sql.Prepare("INSERT INTO Runs(FileName, Label, Marker, LineCount, DropCount) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	db.insertRecord, err = db.sql.Prepare(`INSERT INTO Records(RunID, Seq, Variant, Idx,
		BytesRequested, BytesInUse, BytesFree, HasBytesFree, Allocation, InstructionCount,
		SlabResets, UntypedTooSmall, OOM, LHSFragmentation, InBetweenFragmentation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	db.insertSlab, err = db.sql.Prepare(`INSERT INTO Slabs(RunID, Seq, Slab,
		LHSFragmentation, InBetweenFragmentation, Occupied, Available)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	return nil
}

// InsertRun stores run in a single transaction and returns its ID.
func (db *DB) InsertRun(ctx context.Context, run *allocfmt.Run) (id int64, err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := tx.StmtContext(ctx, db.insertRun).ExecContext(ctx,
		run.FileName, run.Label, run.Marker, run.Stats.Lines, run.Stats.TotalDropped())
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	insertRecord := tx.StmtContext(ctx, db.insertRecord)
	insertSlab := tx.StmtContext(ctx, db.insertSlab)
	for seq, rec := range run.Records() {
		if _, err := insertRecord.ExecContext(ctx, id, seq, rec.Variant.String(), rec.Idx,
			rec.BytesRequested, rec.BytesInUse, rec.BytesFree, rec.HasBytesFree, rec.Allocation, rec.InstructionCount,
			rec.SlabResets, rec.UntypedTooSmall, rec.OOM, rec.LHSFragmentation, rec.InBetweenFragmentation); err != nil {
			return 0, err
		}
		for k, s := range rec.Slabs {
			if _, err := insertSlab.ExecContext(ctx, id, seq, k,
				s.LHSFragmentation, s.InBetweenFragmentation, s.Occupied, s.Available); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// RunInfo describes a stored run without its records.
type RunInfo struct {
	ID       int64
	FileName string
	Label    string
	Marker   string

	// Lines and Dropped are the line accounting of the original
	// extraction.
	Lines   int
	Dropped int

	// Records is the number of stored records.
	Records int
}

// Name returns the label of the run, or the base name of its file.
func (ri *RunInfo) Name() string {
	if ri.Label != "" {
		return ri.Label
	}
	return allocfmt.BaseName(ri.FileName)
}

const runInfoQuery = `SELECT r.RunID, r.FileName, r.Label, r.Marker, r.LineCount, r.DropCount,
	(SELECT COUNT(*) FROM Records c WHERE c.RunID = r.RunID)
	FROM Runs r`

func scanRunInfo(rows interface{ Scan(...interface{}) error }) (RunInfo, error) {
	var ri RunInfo
	err := rows.Scan(&ri.ID, &ri.FileName, &ri.Label, &ri.Marker, &ri.Lines, &ri.Dropped, &ri.Records)
	return ri, err
}

// ListRuns returns the stored runs in insertion order. If label is
// not empty, only runs with that label are listed.
func (db *DB) ListRuns(ctx context.Context, label string) ([]RunInfo, error) {
	q, args := runInfoQuery, []interface{}(nil)
	if label != "" {
		q += " WHERE r.Label = ?"
		args = append(args, label)
	}
	rows, err := db.sql.QueryContext(ctx, q+" ORDER BY r.RunID", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunInfo
	for rows.Next() {
		ri, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// LoadRun reads the run with the given ID. The records are admitted
// again as by allocfmt.NewRun.
func (db *DB) LoadRun(ctx context.Context, id int64) (*allocfmt.Run, error) {
	ri, err := scanRunInfo(db.sql.QueryRowContext(ctx, runInfoQuery+" WHERE r.RunID = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	} else if err != nil {
		return nil, err
	}

	recs, err := db.loadRecords(ctx, id, ri.Records)
	if err != nil {
		return nil, err
	}
	if err := db.loadSlabs(ctx, id, recs); err != nil {
		return nil, err
	}

	run, err := allocfmt.NewRun(ri.FileName, recs)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", id, err)
	}
	run.Label = ri.Label
	run.Marker = ri.Marker
	return run, nil
}

func (db *DB) loadRecords(ctx context.Context, id int64, n int) ([]allocfmt.Record, error) {
	rows, err := db.sql.QueryContext(ctx, `SELECT Variant, Idx,
		BytesRequested, BytesInUse, BytesFree, HasBytesFree, Allocation, InstructionCount,
		SlabResets, UntypedTooSmall, OOM, LHSFragmentation, InBetweenFragmentation
		FROM Records WHERE RunID = ? ORDER BY Seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs := make([]allocfmt.Record, 0, n)
	for rows.Next() {
		var rec allocfmt.Record
		var variant string
		if err := rows.Scan(&variant, &rec.Idx,
			&rec.BytesRequested, &rec.BytesInUse, &rec.BytesFree, &rec.HasBytesFree, &rec.Allocation, &rec.InstructionCount,
			&rec.SlabResets, &rec.UntypedTooSmall, &rec.OOM, &rec.LHSFragmentation, &rec.InBetweenFragmentation); err != nil {
			return nil, err
		}
		if rec.Variant, err = allocfmt.ParseVariant(variant); err != nil {
			return nil, fmt.Errorf("run %d: %w", id, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (db *DB) loadSlabs(ctx context.Context, id int64, recs []allocfmt.Record) error {
	rows, err := db.sql.QueryContext(ctx, `SELECT Seq, Slab,
		LHSFragmentation, InBetweenFragmentation, Occupied, Available
		FROM Slabs WHERE RunID = ? ORDER BY Seq, Slab`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var seq, k int
		var s allocfmt.Slab
		if err := rows.Scan(&seq, &k, &s.LHSFragmentation, &s.InBetweenFragmentation, &s.Occupied, &s.Available); err != nil {
			return err
		}
		if seq >= len(recs) || k != len(recs[seq].Slabs) {
			return fmt.Errorf("run %d: slab %d of record %d out of sequence", id, k, seq)
		}
		recs[seq].Slabs = append(recs[seq].Slabs, s)
	}
	return rows.Err()
}

// DeleteRun removes the run with the given ID and all of its records.
func (db *DB) DeleteRun(ctx context.Context, id int64) (err error) {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	// sqlite3 only cascades with foreign keys enabled.
	for _, q := range []string{
		"DELETE FROM Slabs WHERE RunID = ?",
		"DELETE FROM Records WHERE RunID = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM Runs WHERE RunID = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountRuns returns the number of stored runs.
func (db *DB) CountRuns() (int, error) {
	var n int
	err := db.sql.QueryRow("SELECT COUNT(*) FROM Runs").Scan(&n)
	return n, err
}

// Close closes the database connections, releasing any open resources.
func (db *DB) Close() error {
	for _, stmt := range []*sql.Stmt{db.insertRun, db.insertRecord, db.insertSlab} {
		if err := stmt.Close(); err != nil {
			return err
		}
	}
	return db.sql.Close()
}

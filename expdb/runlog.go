// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expdb

import (
	"context"
	"fmt"
	"time"
)

// Run status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RunLog is an entry of the run log.
type RunLog struct {
	Run      uint32
	Plan     string
	Start    time.Time
	Stop     time.Time
	Captures int
	Status   string
	File     string // capture file, if any
}

// LastRun returns the number of the last logged run, 0 if none.
func (db *DB) LastRun(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var run uint32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run FROM runs ORDER BY run DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("expdb: could not query last run: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("expdb: could not get last run value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("expdb: could not scan db for last run: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("expdb: context error while retrieving last run: %w", err)
	}

	return run, nil
}

// Runs returns the n most recent entries of the run log.
func (db *DB) Runs(ctx context.Context, n int) ([]RunLog, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var logs []RunLog
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run, plan, start, stop, captures, status, file FROM runs ORDER BY run DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("expdb: could not run run-log query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v RunLog
		err = rows.Scan(&v.Run, &v.Plan, &v.Start, &v.Stop, &v.Captures, &v.Status, &v.File)
		if err != nil {
			return nil, fmt.Errorf("expdb: could not scan run-log: %w", err)
		}
		logs = append(logs, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expdb: could not scan db for run-log: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("expdb: context error while retrieving run-log: %w", err)
	}

	return logs, nil
}

// LogRun appends an entry to the run log.
func (db *DB) LogRun(ctx context.Context, v RunLog) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (run, plan, start, stop, captures, status, file) VALUES (?, ?, ?, ?, ?, ?, ?)",
		v.Run, v.Plan, v.Start.UTC(), v.Stop.UTC(), v.Captures, v.Status, v.File,
	)
	if err != nil {
		return fmt.Errorf("expdb: could not log run %d: %w", v.Run, err)
	}
	return nil
}

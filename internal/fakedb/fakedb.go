// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
// Queries return the rows registered with Run, and every statement
// executed is recorded.
package fakedb // import "github.com/go-lpc/keepalive/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"sync"
)

var db struct {
	run sync.Mutex // serializes calls to Run

	mu   sync.Mutex
	rows Rows
	log  []Stmt
}

// Run runs f with rows as the result of any query issued by f.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	db.run.Lock()
	defer db.run.Unlock()

	db.mu.Lock()
	db.rows = rows
	db.log = nil
	db.mu.Unlock()

	return f(ctx)
}

// Statements returns the statements executed during the current Run.
func Statements() []Stmt {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]Stmt(nil), db.log...)
}

func record(stmt Stmt) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.log = append(db.log, stmt)
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{SQL: query}, nil
}

// Close invalidates and potentially stops any current
// prepared statements and transactions, marking this
// connection as no longer in use.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
//
// Deprecated: Drivers should implement ConnBeginTx instead (or additionally).
func (c *Conn) Begin() (driver.Tx, error) {
	panic("not implemented")
}

// Stmt is a statement executed against the fake DB.
type Stmt struct {
	SQL  string
	Args []driver.Value
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns the number of placeholder parameters.
// The fake DB does not know, so the sql package will not check argument
// counts.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec executes a query that doesn't return rows, such
// as an INSERT or UPDATE.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	record(Stmt{SQL: stmt.SQL, Args: args})
	return driver.RowsAffected(1), nil
}

// Query executes a query that may return rows, such as a
// SELECT.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	record(Stmt{SQL: stmt.SQL, Args: args})

	db.mu.Lock()
	defer db.mu.Unlock()
	rows := db.rows
	rows.Values = append([][]driver.Value(nil), db.rows.Values...)
	return &rows, nil
}

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next is called to populate the next row of data into
// the provided slice. The provided slice will be the same
// size as the Columns() are wide.
//
// Next should return io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Rows   = (*Rows)(nil)
)

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the condition and configuration
// database of keep-alive test campaigns.
package conddb // import "github.com/go-lpc/keepalive/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/refdata"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

// DB exposes convenience methods to easily retrieve test configurations
// from, and record exchange outcomes into, the keep-alive database.
type DB struct {
	db   *sql.DB
	name string // name of the keep-alive database
}

// Open opens a connection to the keep-alive database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// LastConfig returns the name of the most recently created configuration.
func (db *DB) LastConfig(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	name := ""
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT name FROM configs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return name, fmt.Errorf("conddb: could not query last cfg: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&name)
		if err != nil {
			return name, fmt.Errorf("conddb: could not get last cfg value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return name, fmt.Errorf("conddb: could not scan db for last cfg: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return name, fmt.Errorf("conddb: context error while retrieving last cfg: %w", err)
	}

	if name == "" {
		return name, fmt.Errorf("conddb: no cfg in db %q", db.name)
	}

	return name, nil
}

// Config returns the test configuration stored under name.
// Fields absent from the database keep their default value.
func (db *DB) Config(ctx context.Context, name string) (config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cfg := config.Default()
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT
	address, port, max_msg_size, sensor_samples_saved,
	system_sample_period, fpga_buffer_size, fpga_poll_period,
	period_temp_1, period_temp_2, period_pressure,
	channel_temp_1, channel_temp_2, channel_pressure,
	timeout_ms, seed, ticks
FROM configs
WHERE name=?
`,
		name,
	)
	if err != nil {
		return cfg, fmt.Errorf("conddb: could not run cfg query: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var timeout int64
		err = rows.Scan(
			&cfg.Address, &cfg.Port, &cfg.MaxMsgSize, &cfg.SensorSamplesSaved,
			&cfg.SystemSamplePeriod, &cfg.FPGABufferSize, &cfg.FPGAPollPeriod,
			&cfg.SensorPeriod[refdata.Temp1],
			&cfg.SensorPeriod[refdata.Temp2],
			&cfg.SensorPeriod[refdata.Pressure],
			&cfg.SensorChannel[refdata.Temp1],
			&cfg.SensorChannel[refdata.Temp2],
			&cfg.SensorChannel[refdata.Pressure],
			&timeout, &cfg.Reference.Seed, &cfg.Reference.Ticks,
		)
		if err != nil {
			return cfg, fmt.Errorf("conddb: could not scan row %d for cfg %q: %w", n, name, err)
		}
		cfg.Timeout = time.Duration(timeout) * time.Millisecond
		n++
	}

	if err := rows.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: could not scan db for cfg %q: %w", name, err)
	}

	if err := ctx.Err(); err != nil {
		return cfg, fmt.Errorf("conddb: context error while retrieving cfg %q: %w", name, err)
	}

	switch n {
	case 0:
		return cfg, fmt.Errorf("conddb: no cfg %q in db %q", name, db.name)
	case 1:
	default:
		return cfg, fmt.Errorf("conddb: %d cfgs named %q in db %q", n, name, db.name)
	}

	err = cfg.Validate()
	if err != nil {
		return cfg, fmt.Errorf("conddb: invalid cfg %q: %w", name, err)
	}

	return cfg, nil
}

// Exchange is the recorded outcome of one keep-alive exchange.
type Exchange struct {
	Config   string    // name of the test configuration
	Time     time.Time // start of the exchange
	MsgID    uint8
	Planned  int    // planned number of physical messages
	Received int    // received number of physical messages
	Samples  int    // number of samples compared
	Status   string // "ok", or the kind of failure
	Error    string // failure message, if any
}

// AddExchange records the outcome of a keep-alive exchange.
func (db *DB) AddExchange(ctx context.Context, ex Exchange) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`
INSERT INTO exchanges
	(config, datetime, msg_id, planned, received, samples, status, error)
VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)
`,
		ex.Config, ex.Time.UTC(), int64(ex.MsgID),
		int64(ex.Planned), int64(ex.Received), int64(ex.Samples),
		ex.Status, ex.Error,
	)
	if err != nil {
		return fmt.Errorf("conddb: could not record exchange for cfg %q: %w", ex.Config, err)
	}

	return nil
}

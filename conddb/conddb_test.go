// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package conddb

import (
	"context"
	"database/sql/driver"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/internal/fakedb"
	"github.com/go-lpc/keepalive/refdata"
)

func init() {
	drvName = "fakedb"
}

func TestOpen(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()
}

func TestLastConfig(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"name"},
		Values: [][]driver.Value{
			{"KA2020_0"},
		},
	}, func(ctx context.Context) error {
		name, err := db.LastConfig(ctx)
		if err != nil {
			t.Fatalf("could not retrieve last cfg: %+v", err)
		}

		if got, want := name, "KA2020_0"; got != want {
			t.Fatalf("invalid last cfg: got=%q, want=%q", got, want)
		}
		return nil
	})

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names: []string{"name"},
	}, func(ctx context.Context) error {
		_, err := db.LastConfig(ctx)
		if err == nil {
			t.Fatalf("expected an error on an empty db")
		}
		return nil
	})
}

func cfgRow(cfg config.Config) []driver.Value {
	return []driver.Value{
		cfg.Address, int64(cfg.Port), int64(cfg.MaxMsgSize), int64(cfg.SensorSamplesSaved),
		cfg.SystemSamplePeriod, int64(cfg.FPGABufferSize), cfg.FPGAPollPeriod,
		cfg.SensorPeriod[refdata.Temp1],
		cfg.SensorPeriod[refdata.Temp2],
		cfg.SensorPeriod[refdata.Pressure],
		int64(cfg.SensorChannel[refdata.Temp1]),
		int64(cfg.SensorChannel[refdata.Temp2]),
		int64(cfg.SensorChannel[refdata.Pressure]),
		cfg.Timeout.Milliseconds(), cfg.Reference.Seed, int64(cfg.Reference.Ticks),
	}
}

var cfgCols = []string{
	"address", "port", "max_msg_size", "sensor_samples_saved",
	"system_sample_period", "fpga_buffer_size", "fpga_poll_period",
	"period_temp_1", "period_temp_2", "period_pressure",
	"channel_temp_1", "channel_temp_2", "channel_pressure",
	"timeout_ms", "seed", "ticks",
}

func TestConfig(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	want := config.New(
		config.WithAddress("192.168.1.10"),
		config.WithPort(10042),
		config.WithSensorSamplesSaved(600),
		config.WithSystemSamplePeriod(1000000),
		config.WithFPGA(3000, 1500000000),
		config.WithSensorPeriod(refdata.Temp1, 100000000),
		config.WithSensorChannel(refdata.Pressure, 11),
		config.WithTimeout(2*time.Second),
		config.WithReference(config.Reference{Seed: 42, Ticks: 120000}),
	)

	_ = fakedb.Run(context.Background(), fakedb.Rows{
		Names:  cfgCols,
		Values: [][]driver.Value{cfgRow(want)},
	}, func(ctx context.Context) error {
		got, err := db.Config(ctx, "KA2020_0")
		if err != nil {
			t.Fatalf("could not retrieve cfg: %+v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid cfg:\ngot= %+v\nwant=%+v", got, want)
		}

		stmts := fakedb.Statements()
		if got, want := len(stmts), 1; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		if got, want := stmts[0].Args, []driver.Value{"KA2020_0"}; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid query args: got=%v, want=%v", got, want)
		}
		return nil
	})

	for _, tc := range []struct {
		name string
		rows [][]driver.Value
		err  string
	}{
		{
			name: "missing",
			rows: nil,
			err:  `conddb: no cfg "KA2020_0" in db "fakedb"`,
		},
		{
			name: "duplicate",
			rows: [][]driver.Value{cfgRow(want), cfgRow(want)},
			err:  `conddb: 2 cfgs named "KA2020_0" in db "fakedb"`,
		},
		{
			name: "invalid",
			rows: [][]driver.Value{cfgRow(config.New(config.WithMaxMsgSize(10)))},
			err:  `conddb: invalid cfg "KA2020_0": config: invalid max message size 10`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_ = fakedb.Run(context.Background(), fakedb.Rows{
				Names:  cfgCols,
				Values: tc.rows,
			}, func(ctx context.Context) error {
				_, err := db.Config(ctx, "KA2020_0")
				if err == nil {
					t.Fatalf("expected an error")
				}
				if got, want := err.Error(), tc.err; !strings.HasPrefix(got, want) {
					t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
				}
				return nil
			})
		})
	}
}

func TestAddExchange(t *testing.T) {
	db, err := Open("fakedb")
	if err != nil {
		t.Fatalf("could not open conddb: %+v", err)
	}
	defer db.Close()

	now := time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)
	_ = fakedb.Run(context.Background(), fakedb.Rows{}, func(ctx context.Context) error {
		err := db.AddExchange(ctx, Exchange{
			Config:   "KA2020_0",
			Time:     now,
			MsgID:    42,
			Planned:  17,
			Received: 17,
			Samples:  1800,
			Status:   "ok",
		})
		if err != nil {
			t.Fatalf("could not record exchange: %+v", err)
		}

		stmts := fakedb.Statements()
		if got, want := len(stmts), 1; got != want {
			t.Fatalf("invalid number of statements: got=%d, want=%d", got, want)
		}
		if !strings.Contains(stmts[0].SQL, "INSERT INTO exchanges") {
			t.Fatalf("invalid statement: %q", stmts[0].SQL)
		}
		want := []driver.Value{
			"KA2020_0", now, int64(42), int64(17), int64(17), int64(1800), "ok", "",
		}
		if got := stmts[0].Args; !reflect.DeepEqual(got, want) {
			t.Fatalf("invalid statement args:\ngot= %v\nwant=%v", got, want)
		}
		return nil
	})
}

// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ka-oracle runs keep-alive exchanges against a target and checks
// the replies against the reference data.
//
// Usage: ka-oracle [OPTIONS]
//
// Example:
//
//	$> ka-oracle -cfg ./keepalive.toml -n 10 -period 2s
//	$> ka-oracle -local -n 0 -metrics :9100
package main // import "github.com/go-lpc/keepalive/cmd/ka-oracle"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tlog "github.com/go-daq/tdaq/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/keepalive"
	"github.com/go-lpc/keepalive/conddb"
	"github.com/go-lpc/keepalive/config"
	"github.com/go-lpc/keepalive/metrics"
	"github.com/go-lpc/keepalive/oracle"
	"github.com/go-lpc/keepalive/refdata"
	"github.com/go-lpc/keepalive/sim"
)

type options struct {
	cfg     string // path to TOML configuration
	ref     string // path to raw sample file
	db      string // name of the keep-alive database
	dbcfg   string // name of the configuration in the database
	n       int    // number of exchanges. 0: until interrupted.
	period  time.Duration
	local   bool   // serve a simulated target in-process
	metrics string // address of the metrics HTTP server
	mail    bool   // send a mail alert on failure
	tscheck bool
	lvl     tlog.Level
}

func main() {
	log.SetPrefix("ka-oracle: ")
	log.SetFlags(0)

	var (
		opts  options
		debug = flag.Bool("v", false, "enable verbose mode")
		vers  = flag.Bool("version", false, "print version and exit")
	)
	flag.StringVar(&opts.cfg, "cfg", "", "path to TOML configuration file (default: built-in defaults)")
	flag.StringVar(&opts.ref, "ref", "", "path to raw sample file (default: generated from configuration)")
	flag.StringVar(&opts.db, "db", "", "name of the keep-alive database (default: no database)")
	flag.StringVar(&opts.dbcfg, "db-cfg", "", "name of the configuration to read from the database (default: last one)")
	flag.IntVar(&opts.n, "n", 1, "number of exchanges to run (0: until interrupted)")
	flag.DurationVar(&opts.period, "period", 2*time.Second, "time between two exchanges")
	flag.BoolVar(&opts.local, "local", false, "run against an in-process simulated target")
	flag.StringVar(&opts.metrics, "metrics", "", "[ip]:port to serve Prometheus metrics on (default: disabled)")
	flag.BoolVar(&opts.mail, "mail", false, "send a mail alert on failure")
	flag.BoolVar(&opts.tscheck, "ts", false, "check reply timestamps against the reference data")

	flag.Parse()

	if *vers {
		v, sum := keepalive.Version()
		fmt.Printf("ka-oracle %s %s\n", v, sum)
		return
	}

	opts.lvl = tlog.LvlInfo
	if *debug {
		opts.lvl = tlog.LvlDebug
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Stdout, opts)
	if err != nil {
		if opts.mail {
			alertMail(err)
		}
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, w io.Writer, opts options) error {
	var db *conddb.DB
	if opts.db != "" {
		v, err := conddb.Open(opts.db)
		if err != nil {
			return fmt.Errorf("could not open keep-alive db: %w", err)
		}
		defer v.Close()
		db = v
	}

	cfg, cname, err := loadConfig(ctx, db, opts)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	model, err := loadModel(cfg, opts.ref, time.Now())
	if err != nil {
		return fmt.Errorf("could not create reference data: %w", err)
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("could not create metrics: %w", err)
	}
	if opts.metrics != "" {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv := serveMetrics(opts.metrics, reg)
		defer srv.Close()
	}

	msg := tlog.NewMsgStream("ka-oracle", opts.lvl, w)
	o, err := oracle.New(
		cfg, model,
		oracle.WithLogger(msg),
		oracle.WithMetrics(m),
		oracle.WithTimestampCheck(opts.tscheck),
	)
	if err != nil {
		return fmt.Errorf("could not create oracle: %w", err)
	}

	var (
		nexch = 0
		beg   = time.Now()
	)
	record := func(rep oracle.Report, err error) {
		if db == nil {
			return
		}
		ex := conddb.Exchange{
			Config:   cname,
			Time:     beg,
			MsgID:    rep.MsgID,
			Planned:  rep.Planned,
			Received: rep.Received,
			Samples:  rep.Samples,
			Status:   oracle.Kind(err),
		}
		if err != nil {
			ex.Error = err.Error()
		}
		e := db.AddExchange(ctx, ex)
		if e != nil {
			msg.Warnf("could not record exchange: %+v", e)
		}
	}

	check := func(rep oracle.Report) error {
		nexch++
		msg.Infof("exchange #%d: %v", nexch, rep)
		record(rep, nil)
		beg = time.Now()
		if opts.n > 0 && nexch >= opts.n {
			return oracle.ErrStop
		}
		return nil
	}

	switch {
	case opts.local:
		var tgt *sim.Target
		tgt, err = sim.New(cfg, model.Clone(), sim.WithLogger(tlog.NewMsgStream("ka-sim", opts.lvl, w)))
		if err != nil {
			return fmt.Errorf("could not create simulated target: %w", err)
		}
		err = o.RunLocal(ctx, tgt, opts.period, check)
	default:
		var (
			dial net.Dialer
			conn net.Conn
		)
		conn, err = dial.DialContext(ctx, "tcp", cfg.Addr())
		if err != nil {
			return fmt.Errorf("could not dial target %q: %w", cfg.Addr(), err)
		}
		defer conn.Close()
		err = o.Poll(ctx, conn, nil, opts.period, check)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Printf("interrupted after %d exchange(s)", nexch)
			return nil
		}
		var rep oracle.Report
		var eerr *oracle.ExchangeError
		if errors.As(err, &eerr) {
			rep = eerr.Report
		}
		record(rep, err)
		return fmt.Errorf("exchange #%d failed (%s): %w", nexch+1, oracle.Kind(err), err)
	}

	log.Printf("%d exchange(s) ok", nexch)
	return nil
}

func loadConfig(ctx context.Context, db *conddb.DB, opts options) (config.Config, string, error) {
	switch {
	case db != nil:
		name := opts.dbcfg
		if name == "" {
			v, err := db.LastConfig(ctx)
			if err != nil {
				return config.Config{}, "", err
			}
			name = v
		}
		cfg, err := db.Config(ctx, name)
		return cfg, name, err
	case opts.cfg != "":
		cfg, err := config.Load(opts.cfg)
		return cfg, opts.cfg, err
	default:
		return config.Default(), "default", nil
	}
}

func loadModel(cfg config.Config, fname string, now time.Time) (*refdata.Model, error) {
	if fname == "" {
		return cfg.Model(now)
	}

	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open raw sample file: %w", err)
	}
	defer f.Close()

	return cfg.ReadModel(f, now)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %+v", err)
		}
	}()
	return srv
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = splitTargets(os.Getenv("MAIL_TGTS"))
)

func alertMessage(err error) *mail.Message {
	host, _ := os.Hostname()

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[ka-oracle] keep-alive alert: %s", oracle.Kind(err)))
	msg.SetBody("text/plain", fmt.Sprintf("host:  %s\nkind:  %s\nerror: %+v\n",
		host, oracle.Kind(err), err,
	))
	return msg
}

func alertMail(err error) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err = dial.DialAndSend(alertMessage(err))
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func splitTargets(s string) []string {
	var o []string
	for _, v := range strings.Split(s, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		o = append(o, v)
	}
	return o
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

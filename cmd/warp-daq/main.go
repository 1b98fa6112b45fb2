// Copyright 2026 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command warp-daq runs one experiment over a testbed of radio nodes and
// writes the captured samples to a capture file.
//
// Usage: warp-daq [OPTIONS] -plan plan.json
//
// Example:
//
//	$> warp-daq -registry ./testbed.json -plan ./loopback.json -o run-042.wcap -run 42
//	warp-daq: run 42: plan "loopback" over 2 node(s)
//	warp-daq: node=2 radio 1: 16383 samples, 0 overrange, power=-6.02 dBFS
//	warp-daq: run 42: wrote 1 capture(s) to "run-042.wcap"
package main // import "github.com/go-lpc/warpnet/cmd/warp-daq"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/warpnet"
	"github.com/go-lpc/warpnet/capfile"
	"github.com/go-lpc/warpnet/exp"
	"github.com/go-lpc/warpnet/expdb"
	"github.com/go-lpc/warpnet/iq"
	"github.com/go-lpc/warpnet/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/pmon"
	mail "gopkg.in/gomail.v2"
)

func main() {
	log.SetPrefix("warp-daq: ")
	log.SetFlags(0)

	err := xmain(os.Args[1:])
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type config struct {
	plan     string
	registry string
	dsn      string
	testbed  string
	out      string
	run      uint32

	timeout time.Duration
	chunk   int
	jitter  int
	bcast   []string
	retries uint64
	stop    bool
	verbose bool

	metrics string
	pmon    bool
	freq    time.Duration
	alert   bool
}

func xmain(args []string, opts ...node.Option) error {
	var (
		fset = flag.NewFlagSet("warp-daq", flag.ContinueOnError)

		plan     = fset.String("plan", "", "path to the JSON experiment plan")
		registry = fset.String("registry", "", "path to the JSON node registry")
		dsn      = fset.String("db", "", "experiment database DSN (user:pass@tcp(host:port)/dbname)")
		testbed  = fset.String("testbed", "", "testbed to retrieve from the experiment database")
		out      = fset.String("o", "", "path to the output capture file (default: run-NNN.wcap)")
		run      = fset.Int("run", 0, "run number (default: next run of the experiment database)")
		timeout  = fset.Duration("timeout", node.DefaultTimeout, "acknowledgment timeout")
		chunk    = fset.Int("chunk", node.DefaultChunkSize, "number of samples per transfer packet")
		jitter   = fset.Int("jitter", node.DefaultJitter, "sync jitter bound, in samples")
		bcast    = fset.String("sync", node.DefaultBroadcast, "comma separated list of sync addresses")
		retries  = fset.Uint64("retries", 0, "number of retries of a timed out run")
		stop     = fset.Bool("stop", false, "stop the continuous transmission of the plan")
		verbose  = fset.Bool("v", false, "enable verbose mode")
		metrics  = fset.String("metrics", "", "[ip]:port to serve Prometheus metrics on")
		doMon    = fset.Bool("pmon", false, "enable pmon monitoring")
		doFreq   = fset.Duration("freq", 1*time.Second, "pmon frequency")
		alert    = fset.Bool("alert", false, "send a mail alert on failure")
	)

	fset.Usage = func() {
		fmt.Fprintf(fset.Output(), `Usage: warp-daq [OPTIONS] -plan plan.json

ex:
 $> warp-daq -registry ./testbed.json -plan ./loopback.json -o run-042.wcap -run 42

options:
`)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		return fmt.Errorf("could not parse input arguments: %w", err)
	}

	switch {
	case *plan == "":
		fset.Usage()
		return fmt.Errorf("missing path to experiment plan")
	case *registry == "" && (*dsn == "" || *testbed == ""):
		fset.Usage()
		return fmt.Errorf("missing node registry or experiment database testbed")
	case *run < 0 || int64(*run) > int64(^uint32(0)):
		return fmt.Errorf("invalid run number %d", *run)
	}

	cfg := config{
		plan:     *plan,
		registry: *registry,
		dsn:      *dsn,
		testbed:  *testbed,
		out:      *out,
		run:      uint32(*run),
		timeout:  *timeout,
		chunk:    *chunk,
		jitter:   *jitter,
		bcast:    strings.Split(*bcast, ","),
		retries:  *retries,
		stop:     *stop,
		verbose:  *verbose,
		metrics:  *metrics,
		pmon:     *doMon,
		freq:     *doFreq,
		alert:    *alert,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = process(ctx, cfg, opts...)
	if err != nil && cfg.alert {
		alertMail(cfg, err)
	}
	return err
}

func process(ctx context.Context, cfg config, opts ...node.Option) error {
	lvl := tlog.LvlInfo
	if cfg.verbose {
		lvl = tlog.LvlDebug
	}
	msg := tlog.NewMsgStream("warp-daq", lvl, os.Stdout)
	if v, _ := warpnet.Version(); v != "" {
		msg.Debugf("warpnet version %s", v)
	}

	if cfg.pmon {
		stop, err := monitor(cfg)
		if err != nil {
			return err
		}
		defer stop()
	}

	f, err := os.Open(cfg.plan)
	if err != nil {
		return fmt.Errorf("could not open plan: %w", err)
	}
	defer f.Close()

	plan, err := exp.LoadPlan(f)
	if err != nil {
		return fmt.Errorf("could not load plan %q: %w", cfg.plan, err)
	}

	var db *expdb.DB
	if cfg.dsn != "" {
		db, err = expdb.Open(cfg.dsn)
		if err != nil {
			return fmt.Errorf("could not open experiment database: %w", err)
		}
		defer db.Close()

		err = db.Apply(ctx, &plan)
		if err != nil {
			return fmt.Errorf("could not apply radio settings: %w", err)
		}
		if cfg.run == 0 {
			last, err := db.LastRun(ctx)
			if err != nil {
				return fmt.Errorf("could not retrieve last run: %w", err)
			}
			cfg.run = last + 1
		}
	}

	reg, err := registry(ctx, cfg, db)
	if err != nil {
		return err
	}

	sopts := []node.Option{
		node.WithTimeout(cfg.timeout),
		node.WithChunkSize(cfg.chunk),
		node.WithJitter(cfg.jitter),
		node.WithBroadcast(cfg.bcast...),
		node.WithLogger(msg),
	}
	if cfg.metrics != "" {
		preg := prometheus.NewRegistry()
		srv, err := serveMetrics(cfg.metrics, preg)
		if err != nil {
			return err
		}
		defer srv.Close()
		sopts = append(sopts, node.WithMetrics(preg))
	}

	sess, err := node.Open(ctx, reg, append(sopts, opts...)...)
	if err != nil {
		return fmt.Errorf("could not open session: %w", err)
	}
	defer sess.Close()

	if cfg.stop {
		err = exp.StopContinuous(ctx, sess, plan)
		if err != nil {
			return fmt.Errorf("could not stop plan %q: %w", plan.Name, err)
		}
		msg.Infof("stopped continuous transmission of plan %q", plan.Name)
		return nil
	}

	msg.Infof("run %d: plan %q over %d node(s)", cfg.run, plan.Name, len(plan.Nodes))
	res, err := runPlan(ctx, cfg, sess, plan, msg)
	if db != nil {
		status := expdb.StatusOK
		if err != nil {
			status = expdb.StatusFailed
		}
		e := db.LogRun(ctx, expdb.RunLog{
			Run:      cfg.run,
			Plan:     plan.Name,
			Start:    res.Start,
			Stop:     res.Stop,
			Captures: len(res.Captures),
			Status:   status,
			File:     output(cfg),
		})
		if e != nil {
			msg.Errorf("could not log run %d: %+v", cfg.run, e)
		}
	}
	if err != nil {
		return fmt.Errorf("could not run plan %q: %w", plan.Name, err)
	}

	for _, c := range res.Captures {
		st := iq.Summary(c.Samples)
		msg.Infof(
			"node=%d radio %d: %d samples, %d overrange, power=%.2f dBFS",
			c.Node, c.Radio, st.N, st.Overrange, st.Power,
		)
	}
	for id, v := range res.AGC {
		for _, r := range v.Radios {
			msg.Infof("node=%d AGC %v", id, r)
		}
	}

	err = write(cfg, plan, res)
	if err != nil {
		return err
	}
	msg.Infof("run %d: wrote %d capture(s) to %q", cfg.run, len(res.Captures), output(cfg))
	return nil
}

// runPlan runs the plan, retrying runs that timed out.
func runPlan(ctx context.Context, cfg config, sess *node.Session, plan exp.Plan, msg node.Logger) (exp.Result, error) {
	var (
		res exp.Result
		bo  = backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), cfg.retries),
			ctx,
		)
	)
	op := func() error {
		var err error
		res, err = exp.Run(ctx, sess, plan)
		if err != nil && !errors.Is(err, node.ErrTimeout) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(op, bo, func(err error, d time.Duration) {
		msg.Warnf("run %d timed out, retrying in %v: %+v", cfg.run, d, err)
	})
	return res, err
}

func registry(ctx context.Context, cfg config, db *expdb.DB) (node.Registry, error) {
	if cfg.registry == "" {
		reg, err := db.Registry(ctx, cfg.testbed)
		if err != nil {
			return reg, fmt.Errorf("could not retrieve testbed %q: %w", cfg.testbed, err)
		}
		return reg, nil
	}

	f, err := os.Open(cfg.registry)
	if err != nil {
		return node.Registry{}, fmt.Errorf("could not open registry: %w", err)
	}
	defer f.Close()

	reg, err := node.LoadRegistry(f)
	if err != nil {
		return reg, fmt.Errorf("could not load registry %q: %w", cfg.registry, err)
	}
	return reg, nil
}

func output(cfg config) string {
	if cfg.out != "" {
		return cfg.out
	}
	return fmt.Sprintf("run-%03d.wcap", cfg.run)
}

func write(cfg config, plan exp.Plan, res exp.Result) error {
	oname := output(cfg)
	err := os.MkdirAll(filepath.Dir(oname), 0755)
	if err != nil {
		return fmt.Errorf("could not create output directory: %w", err)
	}

	f, err := os.Create(oname)
	if err != nil {
		return fmt.Errorf("could not create capture file: %w", err)
	}
	defer f.Close()

	err = capfile.Write(f, capfile.NewHeader(cfg.run, plan, res), res.Captures)
	if err != nil {
		return fmt.Errorf("could not write capture file %q: %w", oname, err)
	}

	err = f.Close()
	if err != nil {
		return fmt.Errorf("could not close capture file %q: %w", oname, err)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry) (*http.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}
	go func() {
		err := srv.Serve(lis)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("could not serve metrics: %+v", err)
		}
	}()
	return srv, nil
}

func monitor(cfg config) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring: %w", err)
	}
	f, err := os.Create(fmt.Sprintf("run-%03d-pmon.log", cfg.run))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = cfg.freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func alertMail(cfg config, err error) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", alertMailUsr)
	msg.SetHeader("Bcc", alertMailTgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[warp-daq] run %d failed", cfg.run))
	msg.SetBody("text/plain", fmt.Sprintf("run:   %d\nplan:  %q\nerror: %+v",
		cfg.run, cfg.plan, err,
	))

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	e := dial.DialAndSend(msg)
	if e != nil {
		log.Printf("could not send mail alert: %+v", e)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

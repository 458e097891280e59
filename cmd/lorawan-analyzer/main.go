// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of lorawan-analyzer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chirpwatch/lorawan-analyzer/internal/api"
	"github.com/chirpwatch/lorawan-analyzer/internal/broadcast"
	"github.com/chirpwatch/lorawan-analyzer/internal/bus"
	"github.com/chirpwatch/lorawan-analyzer/internal/coldstore"
	"github.com/chirpwatch/lorawan-analyzer/internal/config"
	"github.com/chirpwatch/lorawan-analyzer/internal/ingest"
	"github.com/chirpwatch/lorawan-analyzer/internal/metrics"
	"github.com/chirpwatch/lorawan-analyzer/internal/operator"
	"github.com/chirpwatch/lorawan-analyzer/internal/query"
	"github.com/chirpwatch/lorawan-analyzer/internal/session"
	"github.com/chirpwatch/lorawan-analyzer/internal/store"
	"github.com/chirpwatch/lorawan-analyzer/internal/writer"
	"github.com/chirpwatch/lorawan-analyzer/model"
	"github.com/chirpwatch/lorawan-analyzer/pkg/log"
	"github.com/chirpwatch/lorawan-analyzer/pkg/runtimeEnv"
)

const (
	defaultMetricsBind = ":9100"
	// Sessions outlive the 8-day packet retention so loss queries can
	// group every surviving row by session id.
	sessionIdleWindow   = 9 * 24 * time.Hour
	sessionSweepPeriod  = time.Hour
	liveSinkBuffer      = 1024
	rawMessageBuffer    = 4096
	gaugeReportInterval = 15 * time.Second
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the configuration file")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatal(err)
	}

	db, err := store.Connect(config.Keys.Postgres.URL)
	if err != nil {
		log.Fatal(err)
	}
	if err := store.MigrateUp(db.DB); err != nil {
		log.Fatal(err)
	}

	persist := store.New(db)

	hub := broadcast.NewHub()

	var notifier writer.CacheNotifier = hub
	if config.Keys.Bus.Address != "" {
		b, err := bus.Connect(bus.Config{
			Address:       config.Keys.Bus.Address,
			Username:      config.Keys.Bus.Username,
			Password:      config.Keys.Bus.Password,
			CredsFilePath: config.Keys.Bus.CredsFilePath,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer b.Close()

		if err := bus.WireHub(b, hub); err != nil {
			log.Fatal(err)
		}
		notifier = bus.Publisher{Bus: b}
	}

	operators := operator.NewTable()
	if err := operators.Load(buildDevAddrRules(persist), operator.DefaultJoinEUIRules()); err != nil {
		log.Fatal(err)
	}

	sessions := session.New(sessionIdleWindow)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	w := writer.New(persist, notifier, writer.Config{}).WithMetrics(collector)
	w.Start()
	defer w.Close()

	broadcastPackets := make(chan *model.ParsedPacket, liveSinkBuffer)
	broadcastCsPackets := make(chan *model.CsPacket, liveSinkBuffer)
	broadcastLive := make(chan *model.LivePacket, liveSinkBuffer)
	go bridgeBroadcast(hub, broadcastPackets, broadcastCsPackets, broadcastLive)

	pipeline := &ingest.Pipeline{
		Operators: operators,
		Sessions:  sessions,
		Sinks: ingest.Sinks{
			WriterPackets:      w.Packets(),
			WriterCsPackets:    w.CsPackets(),
			BroadcastPackets:   broadcastPackets,
			BroadcastCsPackets: broadcastCsPackets,
			BroadcastLive:      broadcastLive,
		},
		Metrics: collector,
	}

	rawIn := make(chan ingest.RawMessage, rawMessageBuffer)
	go pipeline.Run(rawIn)

	consumers := make([]*ingest.Consumer, 0, len(config.Keys.Brokers()))
	for _, b := range config.Keys.Brokers() {
		if b.Server == "" {
			continue
		}
		c := ingest.NewConsumer(ingest.BrokerConfig{
			Name:     b.Server,
			Server:   b.Server,
			Username: b.Username,
			Password: b.Password,
			Topic:    b.Topic,
			Format:   b.Format,
		}, rawIn)
		c.Metrics = collector
		if err := c.Start(); err != nil {
			log.Errorf("ingest: broker %s failed to start: %v", b.Server, err)
			continue
		}
		consumers = append(consumers, c)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("could not create gocron scheduler: %s", err.Error())
	}
	if err := sessions.RegisterSweeper(sched, sessionSweepPeriod); err != nil {
		log.Fatal(err)
	}
	if config.Keys.Coldstore.Enabled {
		if err := registerColdstore(sched, db); err != nil {
			log.Fatal(err)
		}
	}
	sched.Start()

	go reportGauges(hub, sessions, collector)

	var apiServer *http.Server
	if config.Keys.API.Bind != "" {
		router := mux.NewRouter()
		restapi := &api.RestApi{Queries: query.New(db), Hub: hub}
		restapi.MountRoutes(router)

		apiServer = &http.Server{Addr: config.Keys.API.Bind, Handler: router}
		go func() {
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("api server: %s", err.Error())
			}
		}()
		log.Infof("api listening on %s", config.Keys.API.Bind)
	}

	metricsBind := config.Keys.Metrics.Bind
	if metricsBind == "" {
		metricsBind = defaultMetricsBind
	}
	metricsServer := &http.Server{
		Addr:    metricsBind,
		Handler: metrics.Handler(reg),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err.Error())
		}
	}()

	runtimeEnv.SystemdNotify(true, "running")
	log.Infof("lorawan-analyzer running (metrics on %s)", metricsBind)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotify(false, "shutting down")
	for _, c := range consumers {
		c.Stop()
	}
	close(rawIn)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("api server shutdown: %s", err.Error())
		}
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("metrics server shutdown: %s", err.Error())
	}
	if err := sched.Shutdown(); err != nil {
		log.Warnf("scheduler shutdown: %s", err.Error())
	}

	log.Info("graceful shutdown complete")
}

// bridgeBroadcast drains the pipeline's broadcast-bound channels and
// forwards each item to the hub, keeping the hub's publish methods
// free of channel plumbing.
func bridgeBroadcast(hub *broadcast.Hub, packets <-chan *model.ParsedPacket, csPackets <-chan *model.CsPacket, live <-chan *model.LivePacket) {
	for {
		select {
		case pkt, ok := <-packets:
			if !ok {
				packets = nil
				continue
			}
			hub.PublishPacket(pkt)
		case cs, ok := <-csPackets:
			if !ok {
				csPackets = nil
				continue
			}
			hub.PublishCsPacket(cs)
		case lp, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			hub.PublishLive(lp)
		}
	}
}

// defaultCustomRulePriority ranks user-supplied prefixes above the
// built-in NetID blocks unless the entry says otherwise.
const defaultCustomRulePriority = 100

// buildDevAddrRules merges the built-in NetID-derived DevAddr blocks
// with custom operators[] entries from the config file and any rules
// persisted in the custom_operators table.
func buildDevAddrRules(persist *store.Store) []*operator.Rule {
	rules := operator.DefaultDevAddrRules()
	for _, o := range config.Keys.Operators {
		priority := o.Priority
		if priority == 0 {
			priority = defaultCustomRulePriority
		}
		for _, prefix := range o.Prefix {
			addr, bits, err := operator.ParsePrefix(prefix)
			if err != nil {
				log.Warnf("config: operator %q: %v", o.Name, err)
				continue
			}
			rules = append(rules, &operator.Rule{
				Prefix:   addr,
				Bits:     bits,
				Name:     o.Name,
				Priority: priority,
				Color:    o.Color,
			})
		}
	}

	dbRules, err := persist.ListCustomOperators(context.Background())
	if err != nil {
		log.Warnf("store: loading custom operators failed: %v", err)
		return rules
	}
	for _, r := range dbRules {
		addr, bits, err := operator.ParsePrefix(fmt.Sprintf("%s/%d", r.Prefix, r.Bits))
		if err != nil {
			log.Warnf("store: custom operator %q: %v", r.Name, err)
			continue
		}
		rule := &operator.Rule{
			Prefix:   addr,
			Bits:     bits,
			Name:     r.Name,
			Priority: r.Priority,
			Color:    r.Color,
		}
		if r.Expr != nil {
			rule.Expr = *r.Expr
		}
		rules = append(rules, rule)
	}
	return rules
}

// registerColdstore wires the optional S3 export of hourly/channel-SF
// rollups: a daily job exports the previous day's rows, well before the
// 8-day retention policies drop them.
func registerColdstore(sched gocron.Scheduler, db *sqlx.DB) error {
	cfg := config.Keys.Coldstore
	exp, err := coldstore.New(context.Background(), coldstore.Config{
		Endpoint:     cfg.Endpoint,
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
		Prefix:       cfg.Prefix,
	})
	if err != nil {
		return fmt.Errorf("coldstore: %w", err)
	}
	return coldstore.RegisterExportJob(sched, db, exp)
}

// reportGauges periodically refreshes the subscriber and session-count
// gauges, which otherwise have no natural call site to push from.
func reportGauges(hub *broadcast.Hub, sessions *session.Tracker, collector *metrics.Collector) {
	ticker := time.NewTicker(gaugeReportInterval)
	defer ticker.Stop()
	for range ticker.C {
		collector.Subscribers.Set(float64(hub.SubscriberCount()))
		active, _ := sessions.Len()
		collector.SessionCount.Set(float64(active))
	}
}

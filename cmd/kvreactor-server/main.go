// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Command kvreactor-server runs a single-threaded key-value server: one
// reactor goroutine accepts TCP connections and serves a line-delimited
// GET/SET/DEL/SLOWLOG protocol.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	kvreactor "github.com/kvreactor/kvreactor"
	"github.com/kvreactor/kvreactor/log"
)

func main() {
	bind := flag.String("bind", "127.0.0.1", "address to bind")
	port := flag.Int("port", 6380, "port to listen on")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9380", "address to serve Prometheus metrics on")
	slowLogThreshold := flag.Duration("slowlog-threshold", 10*time.Millisecond, "minimum command duration recorded in the slow log; negative disables it")
	slowLogMaxLen := flag.Int("slowlog-max-len", 128, "maximum number of retained slow log entries")
	flag.Parse()

	srv, err := kvreactor.NewServer(*bind, *port,
		kvreactor.WithSlowLogThreshold(*slowLogThreshold),
		kvreactor.WithSlowLogMaxLen(*slowLogMaxLen),
		kvreactor.WithSlowLogExport(func(id int64, argv []string) {
			log.Debugf("kvreactor: slow log entry %d evicted: %v", id, argv)
		}),
	)
	if err != nil {
		log.Fatalf("kvreactor: new server: %v", err)
	}
	defer srv.Close()

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Warnf("kvreactor: metrics server: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infof("kvreactor: shutting down")
		srv.Stop()
	}()

	log.Infof("kvreactor: listening on %s:%d", *bind, *port)
	srv.Run()
}

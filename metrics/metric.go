// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package metrics exposes reactor runtime counters as Prometheus
// collectors: dispatch cycles, fired file/timer handlers, and backend
// poll outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DispatchCycles counts ProcessEvents invocations.
	DispatchCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kvreactor",
		Subsystem: "loop",
		Name:      "dispatch_cycles_total",
		Help:      "Number of event loop dispatch cycles executed.",
	})

	// FileHandlersFired counts individual file-event handler invocations.
	FileHandlersFired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kvreactor",
		Subsystem: "loop",
		Name:      "file_handlers_fired_total",
		Help:      "Number of file-event handlers invoked.",
	})

	// TimerHandlersFired counts timer handler invocations.
	TimerHandlersFired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kvreactor",
		Subsystem: "loop",
		Name:      "timer_handlers_fired_total",
		Help:      "Number of timer handlers invoked.",
	})

	// BackendPollErrors counts Poll calls that returned an error.
	BackendPollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kvreactor",
		Subsystem: "loop",
		Name:      "backend_poll_errors_total",
		Help:      "Number of multiplexer Poll calls that returned an error.",
	})

	// RegisteredFDs reports the loop's current max registered descriptor + 1,
	// as a coarse proxy for active descriptor count.
	RegisteredFDs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kvreactor",
		Subsystem: "loop",
		Name:      "registered_fds",
		Help:      "Highest registered descriptor plus one, or zero if none registered.",
	})
)

func init() {
	prometheus.MustRegister(DispatchCycles, FileHandlersFired, TimerHandlersFired, BackendPollErrors, RegisteredFDs)
}

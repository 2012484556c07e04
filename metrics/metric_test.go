// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/kvreactor/kvreactor/metrics"
)

func TestDispatchCyclesCounts(t *testing.T) {
	before := testutil.ToFloat64(metrics.DispatchCycles)
	metrics.DispatchCycles.Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(metrics.DispatchCycles))
}

func TestRegisteredFDsGauge(t *testing.T) {
	metrics.RegisteredFDs.Set(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(metrics.RegisteredFDs))
}

// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package slowlog

import "github.com/panjf2000/ants/v2"

// AsyncReaper submits evicted entries to a bounded goroutine pool so a
// caller exporting them (metrics, persistence) never blocks the
// reactor's own goroutine that triggered the eviction.
type AsyncReaper struct {
	pool   *ants.PoolWithFunc
	export func(Entry)
}

// NewAsyncReaper builds a reaper backed by a pool of at most size
// goroutines, each invoking export for one evicted entry. size <= 0
// means unbounded, matching ants' own convention.
func NewAsyncReaper(size int, export func(Entry)) (*AsyncReaper, error) {
	r := &AsyncReaper{export: export}
	pool, err := ants.NewPoolWithFunc(size, func(v any) {
		r.export(v.(Entry))
	}, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	r.pool = pool
	return r, nil
}

// Submit hands entry to the pool without blocking the caller. If every
// worker is busy, the entry is not exported and the pool's overload
// error is returned.
func (r *AsyncReaper) Submit(entry Entry) error {
	return r.pool.Invoke(entry)
}

// Close releases the underlying pool's goroutines.
func (r *AsyncReaper) Close() {
	r.pool.Release()
}

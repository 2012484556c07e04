// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package ae

import (
	"reflect"
	"time"

	"github.com/kvreactor/kvreactor/internal/poller"
	"github.com/kvreactor/kvreactor/log"
	"github.com/kvreactor/kvreactor/metrics"
)

// ProcessEvents runs one iteration of the loop: compute the sleep budget,
// poll, fire ready file events in readable-before-writable order (unless
// a descriptor's stored mask has MaskBarrier set, which inverts that
// order for that descriptor), then fire matured timers. It returns the
// number of handlers invoked.
func (l *EventLoop) ProcessEvents(flags ProcessFlags) int {
	if flags&(TimeEvents|FileEvents) == 0 {
		return 0
	}

	processed := 0
	effectiveFlags := flags | l.flags
	metrics.DispatchCycles.Inc()

	if l.maxFD != -1 || (flags&TimeEvents != 0 && flags&DontWait == 0) {
		timeout := l.sleepBudget(effectiveFlags)

		if effectiveFlags&CallBeforeSleep != 0 && l.beforeSleep != nil {
			l.beforeSleep(l)
		}

		n, err := l.backend.Poll(timeout, l.fired)
		if err != nil {
			log.Errorf("ae: backend poll error: %v", err)
			metrics.BackendPollErrors.Inc()
			n = 0
		}

		if effectiveFlags&CallAfterSleep != 0 && l.afterSleep != nil {
			l.afterSleep(l)
		}

		for i := 0; i < n; i++ {
			fired := l.dispatchFile(l.fired[i])
			processed += fired
			metrics.FileHandlersFired.Add(float64(fired))
		}
	}

	if flags&TimeEvents != 0 {
		before := processed
		processed += l.processTimeEvents()
		metrics.TimerHandlersFired.Add(float64(processed - before))
	}
	metrics.RegisteredFDs.Set(float64(l.maxFD + 1))
	return processed
}

// sleepBudget computes how long Poll may block. A nil result means block
// indefinitely; a zero duration means don't block at all.
func (l *EventLoop) sleepBudget(flags ProcessFlags) *time.Duration {
	if flags&DontWait != 0 {
		zero := time.Duration(0)
		return &zero
	}
	if flags&TimeEvents == 0 {
		return nil
	}
	nearest := l.nearestTimer()
	if nearest == nil {
		return nil
	}
	budget := time.Until(nearest.deadline)
	if budget < 0 {
		budget = 0
	}
	return &budget
}

// dispatchFile fires the handlers registered for one ready descriptor and
// returns how many of them ran. If the stored mask (not the delivered
// one) has MaskBarrier set, the writable handler runs before the readable
// one; otherwise readable runs first. A handler firing at most once per
// cycle per fd is enforced via the "fired" counter: the writable handler
// only runs if no handler has fired yet, or if it differs from the
// readable handler (so one shared handler for both bits runs exactly
// once). Every handler invoked for this fd receives the same mask value:
// the delivered readiness bits intersected with what's actually
// registered, not just the bit that triggered that particular call. A
// handler watching both directions on a shared function sees both bits
// set in the single call it gets.
func (l *EventLoop) dispatchFile(ready poller.ReadyFD) int {
	fd := ready.FD
	rawMask := FileMask(ready.Mask)

	fe := &l.events[fd]
	invert := fe.mask&MaskBarrier != 0
	fired := 0
	delivered := rawMask & fe.mask

	if !invert && fe.mask&rawMask&MaskReadable != 0 {
		l.callHandler(fe.onReadable, fd, fe.user, delivered)
		fired++
		fe = &l.events[fd] // re-read: handler may have mutated the event
	}

	if fe.mask&rawMask&MaskWritable != 0 {
		if fired == 0 || differ(fe.onWritable, fe.onReadable) {
			l.callHandler(fe.onWritable, fd, fe.user, delivered)
			fired++
		}
	}

	if invert {
		fe = &l.events[fd]
		if fe.mask&rawMask&MaskReadable != 0 && (fired == 0 || differ(fe.onWritable, fe.onReadable)) {
			l.callHandler(fe.onReadable, fd, fe.user, delivered)
			fired++
		}
	}

	return fired
}

func (l *EventLoop) callHandler(h FileHandler, fd int, user any, mask FileMask) {
	if h == nil {
		return
	}
	if err := h(l, fd, user, mask); err != nil {
		log.Debugf("ae: handler for fd=%d returned error: %v", fd, err)
	}
}

// differ reports whether two handlers are distinct function values. Go
// function values aren't comparable with ==, so this compares underlying
// code pointers via reflection; two nil handlers are never "the same
// handler" for dedup purposes.
func differ(a, b FileHandler) bool {
	if a == nil || b == nil {
		return true
	}
	return reflect.ValueOf(a).Pointer() != reflect.ValueOf(b).Pointer()
}

// Run drives the loop until StopLoop is called from within a handler.
func (l *EventLoop) Run() {
	l.stop.Store(false)
	for !l.stop.Load() {
		l.ProcessEvents(AllEvents | CallBeforeSleep | CallAfterSleep)
	}
}

// StopLoop requests that Run exit at the next iteration boundary. Safe
// only when called from within a handler running on the loop's own
// goroutine.
func (l *EventLoop) StopLoop() {
	l.stop.Store(true)
}

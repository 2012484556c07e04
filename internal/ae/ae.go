// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package ae is a single-threaded, cooperative event loop: the reactor
// that drives every registered file descriptor and timer. It owns a
// dense fd-indexed array of file events, an unordered doubly linked chain
// of timers, and a pluggable multiplexer backend (see
// internal/poller). Handlers never run concurrently with each other or
// with the loop itself; the only suspension point is inside the
// backend's Poll call.
package ae

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/kvreactor/kvreactor/internal/list"
	"github.com/kvreactor/kvreactor/internal/poller"
	"github.com/kvreactor/kvreactor/log"
)

// FileMask is a set drawn from {Readable, Writable, Barrier, None}.
type FileMask int

// File event mask bits.
const (
	MaskNone FileMask = 0
)

const (
	MaskReadable FileMask = 1 << iota
	MaskWritable
	MaskBarrier
)

// ProcessFlags selects which kinds of work ProcessEvents performs, and
// which hooks fire around the multiplexer's sleep.
type ProcessFlags int

// Flags recognized by ProcessEvents.
const (
	FileEvents       ProcessFlags = 1 << iota // process ready file events
	TimeEvents                                // process matured timers
	DontWait                                  // never block in the multiplexer
	CallBeforeSleep                           // run BeforeSleep immediately before blocking
	CallAfterSleep                            // run AfterSleep immediately after the multiplexer returns
)

// AllEvents processes both file and time events.
const AllEvents = FileEvents | TimeEvents

// NoMore is returned by a TimerHandler to mean "don't rearm"; it is also
// the sentinel id value (DELETED) a logically-deleted timer node carries.
const NoMore int64 = -1

const deletedID int64 = -1

// FileHandler handles readiness for a registered descriptor.
type FileHandler func(loop *EventLoop, fd int, user any, mask FileMask) error

// TimerHandler fires when a timer matures. A positive return value
// rearms the timer that many milliseconds later; NoMore lets it expire.
type TimerHandler func(loop *EventLoop, id int64, user any) int64

// Finalizer runs once, at physical removal of a timer node.
type Finalizer func(loop *EventLoop, user any)

// SleepHook runs immediately before or after the multiplexer blocks.
type SleepHook func(loop *EventLoop)

// Sentinel errors matching the error taxonomy in the core's design.
var (
	// ErrCapacity is returned when a descriptor is >= the loop's set size.
	ErrCapacity = errors.New("ae: fd exceeds event loop capacity")
	// ErrResizeBelowMaxFD is returned by Resize when shrinking below the
	// largest currently-registered descriptor.
	ErrResizeBelowMaxFD = errors.New("ae: cannot resize below max registered fd")
)

type fileEvent struct {
	mask       FileMask
	onReadable FileHandler
	onWritable FileHandler
	user       any
}

// timerPayload is the value stored in a timer chain list.Node.
type timerPayload struct {
	id        int64
	deadline  time.Time
	onFire    TimerHandler
	onFinal   Finalizer
	user      any
	refcount  int
}

// EventLoop is the reactor: it owns `events`, `fired`, the timer chain,
// and the backend. Handlers own their own `user` payloads and any
// descriptors they register.
type EventLoop struct {
	events  []fileEvent
	fired   []poller.ReadyFD
	maxFD   int
	setSize int

	timers      *list.List
	nextTimerID atomic.Int64

	lastWallSeconds int64

	stop  atomic.Bool
	flags ProcessFlags

	beforeSleep SleepHook
	afterSleep  SleepHook

	backend poller.Backend
}

// NewEventLoop allocates a loop sized for setSize file descriptors. On
// allocation failure from the backend, no partially built loop is
// returned: the zero value and the error.
func NewEventLoop(setSize int) (*EventLoop, error) {
	backend, err := poller.New(setSize)
	if err != nil {
		return nil, errors.Wrap(err, "ae: create backend")
	}
	loop := &EventLoop{
		events:          make([]fileEvent, setSize),
		fired:           make([]poller.ReadyFD, setSize),
		maxFD:           -1,
		setSize:         setSize,
		timers:          list.New(),
		lastWallSeconds: time.Now().Unix(),
		backend:         backend,
	}
	log.Debugf("ae: event loop created, setSize=%d backend=%s", setSize, backend.Name())
	return loop, nil
}

// SetSize returns the current event-slot capacity.
func (l *EventLoop) SetSize() int {
	return l.setSize
}

// MaxFD returns the largest currently-registered descriptor, or -1.
func (l *EventLoop) MaxFD() int {
	return l.maxFD
}

// SetBeforeSleep installs the hook run just before the multiplexer blocks.
func (l *EventLoop) SetBeforeSleep(hook SleepHook) { l.beforeSleep = hook }

// SetAfterSleep installs the hook run just after the multiplexer returns.
func (l *EventLoop) SetAfterSleep(hook SleepHook) { l.afterSleep = hook }

// SetDontWait makes every future ProcessEvents call (until unset) behave
// as though DontWait were passed explicitly.
func (l *EventLoop) SetDontWait(dontWait bool) {
	if dontWait {
		l.flags |= DontWait
	} else {
		l.flags &^= DontWait
	}
}

// Resize grows or shrinks the loop's capacity. Shrinking below MaxFD+1 is
// a logical error and leaves the loop unchanged.
func (l *EventLoop) Resize(setSize int) error {
	if setSize == l.setSize {
		return nil
	}
	if l.maxFD >= setSize {
		return ErrResizeBelowMaxFD
	}
	if err := l.backend.Resize(setSize); err != nil {
		return errors.Wrap(err, "ae: resize backend")
	}
	events := make([]fileEvent, setSize)
	copy(events, l.events)
	l.events = events
	fired := make([]poller.ReadyFD, setSize)
	copy(fired, l.fired)
	l.fired = fired
	l.setSize = setSize
	return nil
}

// Close tears down the backend. The timer chain and events slice are
// simply dropped with the loop; there is no cross-goroutine state to
// release.
func (l *EventLoop) Close() error {
	return l.backend.Close()
}

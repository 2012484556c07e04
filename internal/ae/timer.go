// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

package ae

import "time"

// CreateTimer allocates a timer node, computes its absolute deadline from
// the current wall clock, assigns it a fresh strictly-increasing id, and
// links it at the head of the (deliberately unordered) timer chain. The
// chain is scanned linearly to find the next-to-fire timer; this is O(N)
// but N stays small in practice, and ordered insertion would only trade
// O(1) lookup for O(N) insertion/deletion, not a win here.
func (l *EventLoop) CreateTimer(delay time.Duration, onFire TimerHandler, user any, onFinal Finalizer) int64 {
	id := l.nextTimerID.Inc() - 1
	l.timers.PushFront(&timerPayload{
		id:       id,
		deadline: time.Now().Add(delay),
		onFire:   onFire,
		onFinal:  onFinal,
		user:     user,
	})
	return id
}

// DeleteTimer marks the timer with the given id DELETED. Physical removal
// happens the next time the dispatcher walks the chain and finds the
// node's refcount at zero, which guards against freeing a node that is
// mid-dispatch (including a timer deleting itself from its own handler).
func (l *EventLoop) DeleteTimer(id int64) bool {
	for n := l.timers.Front(); n != nil; n = n.Next() {
		t := n.Value().(*timerPayload)
		if t.id == id {
			t.id = deletedID
			return true
		}
	}
	return false
}

// nearestTimer returns the node whose deadline is soonest, or nil if the
// chain is empty. O(N) by design; see CreateTimer's comment.
func (l *EventLoop) nearestTimer() *timerPayload {
	var nearest *timerPayload
	for n := l.timers.Front(); n != nil; n = n.Next() {
		t := n.Value().(*timerPayload)
		if t.id == deletedID {
			continue
		}
		if nearest == nil || t.deadline.Before(nearest.deadline) {
			nearest = t
		}
	}
	return nearest
}

// processTimeEvents walks the timer chain once. A snapshot of the id
// counter at entry ensures timers created during this walk are not fired
// in the same cycle; this check is currently moot because new timers are
// always linked at the head, which the walk has already passed, so they
// are never visited in this call; it is kept because non-head insertion
// would need it again.
func (l *EventLoop) processTimeEvents() int {
	processed := 0
	now := time.Now()
	if now.Unix() < l.lastWallSeconds {
		for n := l.timers.Front(); n != nil; n = n.Next() {
			t := n.Value().(*timerPayload)
			// Force every pending timer immediately due rather than
			// risk an arbitrarily long delay from clock skew.
			t.deadline = time.Unix(0, 0)
		}
	}
	l.lastWallSeconds = now.Unix()

	maxID := l.nextTimerID.Load() - 1
	n := l.timers.Front()
	for n != nil {
		next := n.Next()
		t := n.Value().(*timerPayload)

		if t.id == deletedID {
			if t.refcount == 0 {
				if t.onFinal != nil {
					t.onFinal(l, t.user)
				}
				l.timers.Remove(n)
			}
			n = next
			continue
		}
		if t.id > maxID {
			n = next
			continue
		}
		if !time.Now().Before(t.deadline) {
			t.refcount++
			retval := t.onFire(l, t.id, t.user)
			t.refcount--
			processed++
			if retval != NoMore {
				t.deadline = time.Now().Add(time.Duration(retval) * time.Millisecond)
			} else {
				t.id = deletedID
			}
		}
		n = next
	}
	return processed
}

// Tencent is pleased to support the open source community by making tRPC available.
// Copyright (C) 2023 THL A29 Limited, a Tencent company. All rights reserved.
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.

// Package list provides a generic doubly linked list, used by the event
// loop for its timer chain and by the slow log for its bounded entry
// buffer. Node values are opaque; owners supply dup/free/match hooks at
// construction time instead of the list knowing how to copy or compare
// them.
package list

// Direction controls which end of the list an Iterator walks from.
type Direction int

// Iteration directions.
const (
	StartHead Direction = iota
	StartTail
)

// DupFunc deep-copies a node value. If nil, Duplicate copies the raw value.
type DupFunc func(value any) (any, error)

// FreeFunc releases a node value. Called by Remove and Clear.
type FreeFunc func(value any)

// MatchFunc reports whether value matches key, used by Search.
type MatchFunc func(value, key any) bool

// Node is one element of a List. The zero value is not usable; nodes are
// only ever produced by List methods.
type Node struct {
	prev, next *Node
	value      any
}

// Value returns the node's stored value.
func (n *Node) Value() any {
	return n.value
}

// SetValue replaces the node's stored value in place, without invoking the
// list's free hook on the previous value: the caller owns that decision.
func (n *Node) SetValue(value any) {
	n.value = value
}

// Prev returns the previous node, or nil if n is the head.
func (n *Node) Prev() *Node {
	return n.prev
}

// Next returns the following node, or nil if n is the tail.
func (n *Node) Next() *Node {
	return n.next
}

// List is a doubly linked sequence with owner-supplied value hooks.
type List struct {
	head, tail *Node
	dup        DupFunc
	free       FreeFunc
	match      MatchFunc
	len        int
}

// New creates an empty list.
func New() *List {
	return &List{}
}

// SetDupMethod sets the value-duplication hook used by Duplicate.
func (l *List) SetDupMethod(f DupFunc) { l.dup = f }

// SetFreeMethod sets the value-release hook used by Remove and Clear.
func (l *List) SetFreeMethod(f FreeFunc) { l.free = f }

// SetMatchMethod sets the value-equality hook used by Search.
func (l *List) SetMatchMethod(f MatchFunc) { l.match = f }

// Len returns the number of nodes in the list.
func (l *List) Len() int { return l.len }

// Front returns the head node, or nil if the list is empty.
func (l *List) Front() *Node { return l.head }

// Back returns the tail node, or nil if the list is empty.
func (l *List) Back() *Node { return l.tail }

// PushFront inserts value at the head and returns the new node.
func (l *List) PushFront(value any) *Node {
	n := &Node{value: value}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.len++
	return n
}

// PushBack inserts value at the tail and returns the new node.
func (l *List) PushBack(value any) *Node {
	n := &Node{value: value}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.len++
	return n
}

// InsertBefore inserts value immediately before mark and returns the new node.
func (l *List) InsertBefore(mark *Node, value any) *Node {
	if mark == l.head {
		return l.PushFront(value)
	}
	n := &Node{value: value, prev: mark.prev, next: mark}
	mark.prev.next = n
	mark.prev = n
	l.len++
	return n
}

// InsertAfter inserts value immediately after mark and returns the new node.
func (l *List) InsertAfter(mark *Node, value any) *Node {
	if mark == l.tail {
		return l.PushBack(value)
	}
	n := &Node{value: value, prev: mark, next: mark.next}
	mark.next.prev = n
	mark.next = n
	l.len++
	return n
}

// Remove unlinks node from the list and invokes the free hook, if set, on
// its value. node must belong to l; removing a node twice is a no-op.
func (l *List) Remove(node *Node) {
	if node == nil {
		return
	}
	if node.prev == nil && node.next == nil && l.head != node {
		// Already detached (or never linked); avoid corrupting an
		// unrelated single-element list.
		return
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev, node.next = nil, nil
	l.len--
	if l.free != nil {
		l.free(node.value)
	}
}

// Clear removes every node, invoking the free hook on each value.
func (l *List) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		if l.free != nil {
			l.free(n.value)
		}
		n.prev, n.next = nil, nil
		n = next
	}
	l.head, l.tail = nil, nil
	l.len = 0
}

// Search returns the first node whose value matches key according to the
// match hook (or direct equality if no hook is set), walking head to tail.
func (l *List) Search(key any) *Node {
	for n := l.head; n != nil; n = n.next {
		if l.match != nil {
			if l.match(n.value, key) {
				return n
			}
		} else if n.value == key {
			return n
		}
	}
	return nil
}

// Index returns the node at the given index, walking from the head for
// non-negative indices and from the tail for negative ones (-1 is the
// last node). Returns nil if index is out of range.
func (l *List) Index(index int) *Node {
	if index >= 0 {
		n := l.head
		for ; n != nil && index > 0; index-- {
			n = n.next
		}
		return n
	}
	n := l.tail
	for index++; n != nil && index < 0; index++ {
		n = n.prev
	}
	return n
}

// RotateTailToHead moves the tail node to the head in O(1).
func (l *List) RotateTailToHead() {
	if l.len <= 1 {
		return
	}
	tail := l.tail
	l.tail = tail.prev
	l.tail.next = nil
	tail.prev = nil
	tail.next = l.head
	l.head.prev = tail
	l.head = tail
}

// RotateHeadToTail moves the head node to the tail in O(1).
func (l *List) RotateHeadToTail() {
	if l.len <= 1 {
		return
	}
	head := l.head
	l.head = head.next
	l.head.prev = nil
	head.next = nil
	head.prev = l.tail
	l.tail.next = head
	l.tail = head
}

// Join moves every node of other onto the tail of l in O(1); other is left
// empty but remains usable.
func (l *List) Join(other *List) {
	if other.len == 0 {
		return
	}
	if l.len == 0 {
		l.head, l.tail = other.head, other.tail
	} else {
		l.tail.next = other.head
		other.head.prev = l.tail
		l.tail = other.tail
	}
	l.len += other.len
	other.head, other.tail, other.len = nil, nil, 0
}

// Duplicate returns a new list of the same length as l. Each value is
// cloned through the dup hook if one is set, otherwise the value is
// copied as-is. On a dup failure the partial clone is discarded and the
// error is returned.
func (l *List) Duplicate() (*List, error) {
	clone := &List{dup: l.dup, free: l.free, match: l.match}
	for n := l.head; n != nil; n = n.next {
		v := n.value
		if l.dup != nil {
			dv, err := l.dup(v)
			if err != nil {
				clone.Clear()
				return nil, err
			}
			v = dv
		}
		clone.PushBack(v)
	}
	return clone, nil
}

// Iterator walks a list from one end to the other. The node last returned
// by Next may be removed from its list without invalidating the iterator.
type Iterator struct {
	next      *Node
	direction Direction
}

// Iter returns an iterator starting at the head (StartHead) or tail
// (StartTail) of l.
func (l *List) Iter(direction Direction) *Iterator {
	it := &Iterator{direction: direction}
	if direction == StartHead {
		it.next = l.head
	} else {
		it.next = l.tail
	}
	return it
}

// Next returns the next node in the iteration, or nil when exhausted.
func (it *Iterator) Next() *Node {
	n := it.next
	if n == nil {
		return nil
	}
	if it.direction == StartHead {
		it.next = n.next
	} else {
		it.next = n.prev
	}
	return n
}

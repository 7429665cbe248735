// Package queue is a singly linked string queue with O(1) insertion at both
// ends, and the devices that time its operations.
package queue

import (
	"strings"
)

type element struct {
	value string
	next  *element
}

// Queue keeps head, tail and size so that InsertTail and Size never walk the list.
// Methods on a nil *Queue behave as on an empty queue and report failure.
type Queue struct {
	head *element
	tail *element
	size int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// InsertHead stores a private copy of s at the head.
func (q *Queue) InsertHead(s string) bool {
	if q == nil {
		return false
	}
	e := &element{value: strings.Clone(s), next: q.head}
	if q.head == nil {
		q.tail = e
	}
	q.head = e
	q.size++
	return true
}

// InsertTail stores a private copy of s at the tail.
func (q *Queue) InsertTail(s string) bool {
	if q == nil {
		return false
	}
	e := &element{value: strings.Clone(s)}
	if q.tail == nil {
		q.head = e
	} else {
		q.tail.next = e
	}
	q.tail = e
	q.size++
	return true
}

// RemoveHead pops the head value.
func (q *Queue) RemoveHead() (string, bool) {
	if q == nil || q.head == nil {
		return "", false
	}
	e := q.head
	q.head = e.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--
	return e.value, true
}

// Size is O(1).
func (q *Queue) Size() int {
	if q == nil || q.head == nil {
		return 0
	}
	return q.size
}

// Reverse relinks the existing elements in reverse order.
func (q *Queue) Reverse() {
	if q == nil || q.head == nil {
		return
	}
	var prev *element
	cur := q.head
	q.tail = cur
	for cur != nil {
		next := cur.next
		cur.next = prev
		prev = cur
		cur = next
	}
	q.head = prev
}

// Sort orders the queue ascending with a bottom-up merge sort. The sort is
// stable and allocates nothing.
func (q *Queue) Sort() {
	n := q.Size()
	if n < 2 {
		return
	}
	root := element{next: q.head}
	for width := 1; width < n; width *= 2 {
		tail := &root
		cur := root.next
		for cur != nil {
			left := cur
			right := split(left, width)
			cur = split(right, width)
			tail = merge(tail, left, right)
		}
	}
	q.head = root.next
	last := q.head
	for last.next != nil {
		last = last.next
	}
	q.tail = last
}

// split cuts the list after n elements and returns the remainder.
func split(head *element, n int) *element {
	for i := 1; head != nil && i < n; i++ {
		head = head.next
	}
	if head == nil {
		return nil
	}
	rest := head.next
	head.next = nil
	return rest
}

// merge appends the merge of a and b to tail and returns the new tail.
func merge(tail, a, b *element) *element {
	for a != nil && b != nil {
		if b.value < a.value {
			tail.next, b = b, b.next
		} else {
			tail.next, a = a, a.next
		}
		tail = tail.next
	}
	if a == nil {
		a = b
	}
	tail.next = a
	for tail.next != nil {
		tail = tail.next
	}
	return tail
}

// Values copies the queue contents head first.
func (q *Queue) Values() []string {
	if q == nil {
		return nil
	}
	out := make([]string, 0, q.size)
	for e := q.head; e != nil; e = e.next {
		out = append(out, e.value)
	}
	return out
}

package model

import (
	queue "github.com/emirpasic/gods/queues/priorityqueue"
)

// symbolPair is a pending merge candidate: merge the symbol at index
// left with the one at index right into the piece whose score is
// recorded here. size is the combined byte length at the time the
// candidate was discovered; a mismatch at extraction means one of the
// symbols has since been consumed.
type symbolPair struct {
	left  int
	right int
	score float32
	size  int
}

// agenda orders pending merge candidates by score, highest first,
// breaking ties in favor of the smaller left index so equal-score
// merges resolve leftmost-first. Stale candidates are not removed on
// merge; callers filter them at extraction.
type agenda struct {
	q *queue.Queue
}

func newAgenda() *agenda {
	return &agenda{q: queue.NewWith(func(a, b any) int {
		x, y := a.(*symbolPair), b.(*symbolPair)
		switch {
		case x.score > y.score, x.score == y.score && x.left < y.left:
			return -1
		case x.score < y.score, x.score == y.score && x.left > y.left:
			return 1
		default:
			return 0
		}
	})}
}

func (a *agenda) push(pair *symbolPair) {
	a.q.Enqueue(pair)
}

func (a *agenda) pop() (*symbolPair, bool) {
	v, ok := a.q.Dequeue()
	if !ok {
		return nil, false
	}

	return v.(*symbolPair), true
}

func (a *agenda) empty() bool {
	return a.q.Empty()
}

package utils

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrMailBoxClosed  = errors.New("mailbox closed")
	ErrMailBoxTimeout = errors.New("mailbox receive timed out")
)

type envelope[T any] struct {
	src, tag int
	msg      T
}

/*
MailBox is a set of NP inboxes, one per thread. Messages are matched on
(source, tag) and delivered in posting order for each pair, so two messages
from the same source with the same tag can never overtake each other.
*/
type MailBox[T any] struct {
	NP     int
	mu     sync.Mutex
	inbox  [][]envelope[T] // One for each thread
	notify []chan struct{} // Wakes a thread blocked in ReceiveMessage
	done   chan struct{}
	closed bool
}

func NewMailBox[T any](NP int) *MailBox[T] {
	mb := &MailBox[T]{
		NP:     NP,
		inbox:  make([][]envelope[T], NP),
		notify: make([]chan struct{}, NP),
		done:   make(chan struct{}),
	}
	for n := 0; n < NP; n++ {
		mb.notify[n] = make(chan struct{}, 1)
	}
	return mb
}

func (mb *MailBox[T]) checkThread(thread int) {
	if thread < 0 || thread > mb.NP-1 {
		panic(fmt.Sprintf("thread %d out of bounds [0,%d)", thread, mb.NP))
	}
}

// PostMessage never blocks
func (mb *MailBox[T]) PostMessage(myThread, targetThread, tag int, msg T) (err error) {
	mb.checkThread(myThread)
	mb.checkThread(targetThread)
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return ErrMailBoxClosed
	}
	mb.inbox[targetThread] = append(mb.inbox[targetThread],
		envelope[T]{src: myThread, tag: tag, msg: msg})
	mb.mu.Unlock()
	select {
	case mb.notify[targetThread] <- struct{}{}:
	default:
	}
	return
}

func (mb *MailBox[T]) PostMessageToAll(myThread, tag int, msg T) (err error) {
	for k := 0; k < mb.NP; k++ {
		if k != myThread {
			if err = mb.PostMessage(myThread, k, tag, msg); err != nil {
				return
			}
		}
	}
	return
}

func (mb *MailBox[T]) take(myThread, srcThread, tag int) (msg T, ok bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	q := mb.inbox[myThread]
	for i, e := range q {
		if e.src == srcThread && e.tag == tag {
			msg, ok = e.msg, true
			mb.inbox[myThread] = append(q[:i], q[i+1:]...)
			return
		}
	}
	return
}

/*
ReceiveMessage blocks until a message from srcThread with tag arrives for
myThread. A timeout of zero waits forever.
*/
func (mb *MailBox[T]) ReceiveMessage(myThread, srcThread, tag int,
	timeout time.Duration) (msg T, err error) {
	var (
		ok    bool
		timer <-chan time.Time
	)
	mb.checkThread(myThread)
	mb.checkThread(srcThread)
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		if msg, ok = mb.take(myThread, srcThread, tag); ok {
			return
		}
		select {
		case <-mb.notify[myThread]:
		case <-mb.done:
			if msg, ok = mb.take(myThread, srcThread, tag); ok {
				return
			}
			err = ErrMailBoxClosed
			return
		case <-timer:
			err = fmt.Errorf("%w: thread %d waiting on thread %d tag %d",
				ErrMailBoxTimeout, myThread, srcThread, tag)
			return
		}
	}
}

// Pending is the number of undelivered messages waiting for myThread
func (mb *MailBox[T]) Pending(myThread int) int {
	mb.checkThread(myThread)
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.inbox[myThread])
}

// Close wakes every blocked receiver, later posts fail
func (mb *MailBox[T]) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if !mb.closed {
		mb.closed = true
		close(mb.done)
	}
}

/*
PartitionMap splits the index range [0,MaxIndex) into ParallelDegree
contiguous buckets whose sizes differ by at most one, the first
MaxIndex%ParallelDegree buckets holding the extra index.
*/
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // Beginning and end (exclusive) index of each bucket
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	var begin int
	for n := range pm.Partitions {
		end := begin + pm.size(n)
		pm.Partitions[n] = [2]int{begin, end}
		begin = end
	}
	return
}

func (pm *PartitionMap) size(bucketNum int) int {
	if bucketNum < pm.MaxIndex%pm.ParallelDegree {
		return pm.MaxIndex/pm.ParallelDegree + 1
	}
	return pm.MaxIndex / pm.ParallelDegree
}

// Bucket is the bucket holding index k, -1 when k is outside [0,MaxIndex)
func (pm *PartitionMap) Bucket(k int) int {
	if k < 0 || k >= pm.MaxIndex {
		return -1
	}
	var (
		big  = pm.MaxIndex/pm.ParallelDegree + 1
		head = big * (pm.MaxIndex % pm.ParallelDegree) // Indices in the larger buckets
	)
	if k < head {
		return k / big
	}
	return pm.MaxIndex%pm.ParallelDegree + (k-head)/(big-1)
}

// Assignment returns the bucket number of every index in [0,MaxIndex)
func (pm *PartitionMap) Assignment() (owner []int) {
	owner = make([]int, pm.MaxIndex)
	for k := range owner {
		owner[k] = pm.Bucket(k)
	}
	return
}

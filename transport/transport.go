// Package transport is the process group the exchange engine talks to:
// collective all-to-all, max reduction, barrier and tagged point-to-point
// messages. Counts and displacements are always in bytes.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrTransport = errors.New("transport error")

type Comm interface {
	Rank() int
	Size() int
	// AllToAllV sends send[sendDispls[p]:+sendCounts[p]] to rank p and
	// receives recvCounts[p] bytes from rank p into recv at recvDispls[p]
	AllToAllV(send []byte, sendCounts, sendDispls []int,
		recv []byte, recvCounts, recvDispls []int) error
	Send(buf []byte, dest, tag int) error
	// Recv fails if the matching message length differs from len(buf)
	Recv(buf []byte, src, tag int) error
	// AllReduceMax returns the element-wise maximum over all ranks
	AllReduceMax(vals []int) ([]int, error)
	Barrier() error
	// UniqueTag hands out the same sequence on every rank
	UniqueTag() int
}

// Stats counts the bytes one rank moved through its Comm
type Stats struct {
	BytesSent, BytesReceived       int
	MessagesSent, MessagesReceived int
	Collectives                    int
}

func (s *Stats) sent(n int) {
	s.BytesSent += n
	s.MessagesSent++
}

func (s *Stats) received(n int) {
	s.BytesReceived += n
	s.MessagesReceived++
}

func checkAllToAll(size int, send []byte, sendCounts, sendDispls []int,
	recv []byte, recvCounts, recvDispls []int) (err error) {
	if len(sendCounts) != size || len(sendDispls) != size ||
		len(recvCounts) != size || len(recvDispls) != size {
		return fmt.Errorf("%w: alltoallv count tables must have %d entries", ErrTransport, size)
	}
	for p := 0; p < size; p++ {
		if sendCounts[p] < 0 || sendDispls[p] < 0 || sendDispls[p]+sendCounts[p] > len(send) {
			return fmt.Errorf("%w: alltoallv send region for rank %d [%d:+%d] outside buffer of %d bytes",
				ErrTransport, p, sendDispls[p], sendCounts[p], len(send))
		}
		if recvCounts[p] < 0 || recvDispls[p] < 0 || recvDispls[p]+recvCounts[p] > len(recv) {
			return fmt.Errorf("%w: alltoallv receive region for rank %d [%d:+%d] outside buffer of %d bytes",
				ErrTransport, p, recvDispls[p], recvCounts[p], len(recv))
		}
	}
	return
}

func EncodeInts(vals []int) (buf []byte) {
	buf = make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[8*i:], uint64(int64(v)))
	}
	return
}

func DecodeInts(buf []byte) (vals []int) {
	vals = make([]int, len(buf)/8)
	for i := range vals {
		vals[i] = int(int64(binary.LittleEndian.Uint64(buf[8*i:])))
	}
	return
}

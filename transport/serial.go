package transport

import (
	"fmt"
	"time"

	"github.com/notargets/ghostzones/utils"
)

// Serial is a group of one. Messages to self are queued until received.
type Serial struct {
	mb    *utils.MailBox[[]byte]
	tag   int
	Stats Stats
}

func NewSerial() *Serial {
	return &Serial{mb: utils.NewMailBox[[]byte](1)}
}

func (s *Serial) Rank() int { return 0 }
func (s *Serial) Size() int { return 1 }

func (s *Serial) AllToAllV(send []byte, sendCounts, sendDispls []int,
	recv []byte, recvCounts, recvDispls []int) (err error) {
	if err = checkAllToAll(1, send, sendCounts, sendDispls, recv, recvCounts, recvDispls); err != nil {
		return
	}
	if sendCounts[0] != recvCounts[0] {
		return fmt.Errorf("%w: alltoallv sends %d bytes to self, expects %d",
			ErrTransport, sendCounts[0], recvCounts[0])
	}
	copy(recv[recvDispls[0]:recvDispls[0]+recvCounts[0]], send[sendDispls[0]:])
	s.Stats.Collectives++
	return
}

func (s *Serial) Send(buf []byte, dest, tag int) (err error) {
	if dest != 0 {
		return fmt.Errorf("%w: send to rank %d in a group of 1", ErrTransport, dest)
	}
	s.Stats.sent(len(buf))
	return s.mb.PostMessage(0, 0, tag, append([]byte(nil), buf...))
}

func (s *Serial) Recv(buf []byte, src, tag int) (err error) {
	if src != 0 {
		return fmt.Errorf("%w: receive from rank %d in a group of 1", ErrTransport, src)
	}
	var (
		msg []byte
	)
	// Nobody else can post, so a missing message would block forever
	if msg, err = s.mb.ReceiveMessage(0, 0, tag, time.Nanosecond); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if len(msg) != len(buf) {
		return fmt.Errorf("%w: message tag %d has %d bytes, expected %d",
			ErrTransport, tag, len(msg), len(buf))
	}
	copy(buf, msg)
	s.Stats.received(len(msg))
	return
}

func (s *Serial) AllReduceMax(vals []int) ([]int, error) {
	s.Stats.Collectives++
	return append([]int(nil), vals...), nil
}

func (s *Serial) Barrier() error { return nil }

func (s *Serial) UniqueTag() int {
	s.tag++
	return s.tag
}

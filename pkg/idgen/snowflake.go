package idgen

import (
	"errors"
	"strconv"
	"sync"
)

// An id packs, from the high bit down: a zero sign bit, 41 bits of
// milliseconds since Epoch, 10 bits of instance id and a 12-bit sequence.
const (
	instanceBits = 10
	sequenceBits = 12

	maxInstanceID = 1<<instanceBits - 1
	sequenceMask  = 1<<sequenceBits - 1

	// Epoch is 2025-01-01T00:00:00Z in unix milliseconds.
	Epoch = 1735689600000

	// MaxBackwardSkew is how far (ms) the clock may step back before Next fails.
	// Within the window the generator keeps counting on the last timestamp.
	MaxBackwardSkew = 10
)

var (
	ErrNodeIDTooLarge = errors.New("node ID too large")
	ErrClockMovedBack = errors.New("clock moved backwards")
)

// Snowflake hands out unique, roughly time-ordered ids for request
// correlation and status subscriptions. One instance id per engine process.
type Snowflake struct {
	clock    Clock
	instance int64

	mu   sync.Mutex
	last int64
	seq  int64
}

// New returns a generator for instance id nodeID. A nil clock uses the local
// system time.
func New(nodeID int64, clock Clock) (*Snowflake, error) {
	if nodeID < 0 || nodeID > maxInstanceID {
		return nil, ErrNodeIDTooLarge
	}
	if clock == nil {
		clock = &SystemClock{}
	}
	return &Snowflake{clock: clock, instance: nodeID, last: -1}, nil
}

func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.advanceLocked()
	if err != nil {
		return 0, err
	}
	return (ts-Epoch)<<(instanceBits+sequenceBits) | s.instance<<sequenceBits | s.seq, nil
}

// NextString is Next in base 36, the form used on the wire and in logs.
func (s *Snowflake) NextString() (string, error) {
	id, err := s.Next()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}

// advanceLocked picks the timestamp for the next id and bumps the sequence.
func (s *Snowflake) advanceLocked() (int64, error) {
	now := s.clock.Now()
	if now < s.last {
		if s.last-now > MaxBackwardSkew {
			return 0, ErrClockMovedBack
		}
		now = s.last
	}

	if now != s.last {
		s.seq = 0
		s.last = now
		return now, nil
	}

	s.seq = (s.seq + 1) & sequenceMask
	if s.seq == 0 {
		// Sequence exhausted for this millisecond.
		for now <= s.last {
			now = s.clock.Now()
		}
		s.last = now
	}
	return s.last, nil
}

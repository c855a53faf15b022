package frame

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// SequenceState tracks replay protection for one inbound direction.
//
// LastAccepted starts at zero and encoders number chunks from one, so the
// first valid chunk always passes. State only advances through Commit, which
// the Decoder calls after a chunk has been fully validated. Nothing is
// persisted: a new Decoder starts from zero.
type SequenceState struct {
	LastAccepted    uint64
	TimeWindow      time.Duration
	FutureTolerance time.Duration

	log *logrus.Entry
}

func (s *SequenceState) logger() *logrus.Entry {
	if s.log == nil {
		return logrus.NewEntry(logrus.StandardLogger())
	}
	return s.log
}

// Check validates a chunk's sequence number and timestamp against now
// without mutating state.
func (s *SequenceState) Check(seq uint64, ts, now time.Time) error {
	if age := now.Sub(ts); age > s.TimeWindow {
		s.logger().WithFields(logrus.Fields{
			"function": "SequenceState.Check",
			"sequence": seq,
			"age":      age.String(),
			"window":   s.TimeWindow.String(),
		}).Warn("Chunk timestamp outside time window")
		return fmt.Errorf("%w: timestamp %s older than window %s", ErrReplay, age, s.TimeWindow)
	}
	if lead := ts.Sub(now); lead > s.FutureTolerance {
		s.logger().WithFields(logrus.Fields{
			"function":  "SequenceState.Check",
			"sequence":  seq,
			"lead":      lead.String(),
			"tolerance": s.FutureTolerance.String(),
		}).Warn("Chunk timestamp from the future")
		return fmt.Errorf("%w: timestamp %s in the future", ErrReplay, lead)
	}
	if seq <= s.LastAccepted {
		s.logger().WithFields(logrus.Fields{
			"function":      "SequenceState.Check",
			"sequence":      seq,
			"last_accepted": s.LastAccepted,
		}).Warn("Replay detected: sequence number not increasing")
		return fmt.Errorf("%w: sequence %d not after %d", ErrReplay, seq, s.LastAccepted)
	}
	return nil
}

// Commit records seq as the latest accepted sequence number.
func (s *SequenceState) Commit(seq uint64) {
	s.LastAccepted = seq
}

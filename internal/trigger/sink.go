package trigger

import "sync/atomic"

// Sink receives every event an Engine emits, in emission order.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// ChanSink forwards events to a buffered channel and drops them when the
// buffer is full, so a slow reader never stalls evaluation.
type ChanSink struct {
	C       chan Event
	dropped atomic.Uint64
}

func NewChanSink(size int) *ChanSink {
	if size <= 0 {
		size = 64
	}
	return &ChanSink{C: make(chan Event, size)}
}

func (s *ChanSink) Emit(ev Event) {
	select {
	case s.C <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events did not fit in the buffer.
func (s *ChanSink) Dropped() uint64 { return s.dropped.Load() }

// Package audio streams synthesized float32 stereo audio through ebiten and
// exposes the playback position as the preview clock.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
)

// bytesPerFrame is one stereo float32 frame.
const bytesPerFrame = 8

type SampleSource interface {
	// Process fills dst with interleaved stereo samples.
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// SeekableSource can restart generation at an absolute frame.
type SeekableSource interface {
	SampleSource
	SeekFrame(frame int64)
}

var errNotSeekable = errors.New("audio: source is not seekable")

// StreamReader adapts a SampleSource to the io.ReadSeekCloser ebiten reads
// f32 PCM from.
type StreamReader struct {
	mu     sync.Mutex
	source SampleSource
	buf    []float32
	offset int64
}

func NewStreamReader(source SampleSource) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return 0, io.EOF
	}
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	n := frames * bytesPerFrame
	r.offset += int64(n)
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

// Seek moves to a byte offset, rounded down to a whole frame.
func (r *StreamReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ss, ok := r.source.(SeekableSource)
	if !ok {
		return r.offset, errNotSeekable
	}
	switch whence {
	case io.SeekCurrent:
		offset += r.offset
	case io.SeekEnd:
		return r.offset, errors.New("audio: seek from end is not supported")
	}
	if offset < 0 {
		offset = 0
	}
	frame := offset / bytesPerFrame
	ss.SeekFrame(frame)
	r.offset = frame * bytesPerFrame
	return r.offset, nil
}

func (r *StreamReader) Close() error { return nil }

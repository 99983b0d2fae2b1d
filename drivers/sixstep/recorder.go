package sixstep

import "sync"

// Recorder is a PhaseSink that stores every committed frame. It backs the
// package tests and the host simulation; it is safe for concurrent use so
// an observer may read while a tick loop commits.
type Recorder struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

// Commit appends f, or returns the injected error without recording.
func (r *Recorder) Commit(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, f)
	return nil
}

// Fail makes every following Commit return err. Pass nil to heal.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Count returns the number of recorded frames.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Last returns the most recent frame, if any.
func (r *Recorder) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

// Frames returns a copy of the recorded history.
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Reset discards the history and clears any injected error.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.err = nil
	r.mu.Unlock()
}

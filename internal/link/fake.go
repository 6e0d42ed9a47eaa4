package link

import "sync"

// FakeTransport is a test double that records written frames.
type FakeTransport struct {
	mu sync.Mutex

	// Writes contains each Write call's bytes.
	Writes [][]byte

	// WriteError, if set, will be returned by Write()
	WriteError error
}

// NewFakeTransport creates a FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Write records p.
func (f *FakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	f.Writes = append(f.Writes, append([]byte(nil), p...))
	return len(p), nil
}

// Frames decodes every recorded write.
func (f *FakeTransport) Frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	dec := NewDecoder()
	var out []Frame
	for _, w := range f.Writes {
		for _, b := range w {
			if fr, err := dec.DecodeByte(b); err == nil && fr != nil {
				out = append(out, *fr)
			}
		}
	}
	return out
}

// Count returns the number of recorded writes.
func (f *FakeTransport) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

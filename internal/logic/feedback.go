package logic

import "sync/atomic"

// Valve identifies one of the four valves on the remote valve actuator node.
// The numeric value is the valve index used on the wire.
type Valve uint8

const (
	ValveVent Valve = iota
	ValveNitrogen
	ValveNitrousA
	ValveNitrousB
)

// Valves lists every valve in wire index order.
var Valves = [...]Valve{ValveVent, ValveNitrogen, ValveNitrousA, ValveNitrousB}

func (v Valve) String() string {
	switch v {
	case ValveVent:
		return "vent"
	case ValveNitrogen:
		return "nitrogen"
	case ValveNitrousA:
		return "nitrous-a"
	case ValveNitrousB:
		return "nitrous-b"
	}
	return "unknown"
}

// ValveFeedback is the last set of positions acknowledged by the remote valve node.
type ValveFeedback struct {
	Initialised bool
	Open        [len(Valves)]bool
}

// Matches reports whether feedback has been received and shows v in the given position.
func (f ValveFeedback) Matches(v Valve, open bool) bool {
	if !f.Initialised || int(v) >= len(f.Open) {
		return false
	}
	return f.Open[v] == open
}

const feedbackInitialised = 1 << len(Valves)

// FeedbackStore holds the latest ValveFeedback in a single atomic word.
type FeedbackStore struct {
	word atomic.Uint32
}

// Update replaces the stored feedback.
func (s *FeedbackStore) Update(fb ValveFeedback) {
	var w uint32
	for i, open := range fb.Open {
		if open {
			w |= 1 << i
		}
	}
	if fb.Initialised {
		w |= feedbackInitialised
	}
	s.word.Store(w)
}

// Load returns the stored feedback.
func (s *FeedbackStore) Load() ValveFeedback {
	w := s.word.Load()
	var fb ValveFeedback
	for i := range fb.Open {
		fb.Open[i] = w&(1<<i) != 0
	}
	fb.Initialised = w&feedbackInitialised != 0
	return fb
}

package logic

import "time"

// Anchor identifies a timestamp a milestone offset is measured from.
type Anchor int

const (
	AnchorSequenceStart Anchor = iota
	AnchorFireInOne
	AnchorFireStart

	numAnchors
)

// Milestone is one timed, one-shot action.
type Milestone struct {
	Name   string
	Anchor Anchor
	Offset time.Duration

	// After names a milestone that must have completed first. Empty means no prerequisite.
	After string

	// Action runs once the milestone is due. A non-nil error leaves the
	// milestone pending so it is attempted again on the next step.
	Action func(now time.Time) error
}

// Timeline evaluates an ordered milestone table. The table is evaluated in
// declaration order and at most one action runs per Step, so tables list the
// most advanced milestone first.
type Timeline struct {
	milestones []Milestone
	done       []bool
	anchors    [numAnchors]time.Time
	anchored   [numAnchors]bool
}

// NewTimeline creates a timeline over ms.
func NewTimeline(ms []Milestone) *Timeline {
	return &Timeline{milestones: ms, done: make([]bool, len(ms))}
}

// SetAnchor records the time an anchor was reached.
func (t *Timeline) SetAnchor(a Anchor, at time.Time) {
	t.anchors[a] = at
	t.anchored[a] = true
}

// AnchorAt returns the anchor time and whether it has been set.
func (t *Timeline) AnchorAt(a Anchor) (time.Time, bool) {
	return t.anchors[a], t.anchored[a]
}

// Reset clears all anchors and completion flags.
func (t *Timeline) Reset() {
	for i := range t.done {
		t.done[i] = false
	}
	t.anchors = [numAnchors]time.Time{}
	t.anchored = [numAnchors]bool{}
}

// Done reports whether the named milestone has completed.
func (t *Timeline) Done(name string) bool {
	for i, m := range t.milestones {
		if m.Name == name {
			return t.done[i]
		}
	}
	return false
}

// Complete reports whether every milestone has completed.
func (t *Timeline) Complete() bool {
	for _, d := range t.done {
		if !d {
			return false
		}
	}
	return true
}

// Step runs the first due milestone in table order and returns its name and
// the action's error. An empty name means nothing was due.
func (t *Timeline) Step(now time.Time) (string, error) {
	for i, m := range t.milestones {
		if !t.due(i, now) {
			continue
		}
		if err := m.Action(now); err != nil {
			return m.Name, err
		}
		t.done[i] = true
		return m.Name, nil
	}
	return "", nil
}

func (t *Timeline) due(i int, now time.Time) bool {
	m := t.milestones[i]
	if t.done[i] || !t.anchored[m.Anchor] {
		return false
	}
	if m.After != "" && !t.Done(m.After) {
		return false
	}
	return now.Sub(t.anchors[m.Anchor]) >= m.Offset
}

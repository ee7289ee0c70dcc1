package domain

// PairRule declares that a frame from Second completes a pending frame from
// First. Rules are ordered: Second arriving first does not pair.
type PairRule struct {
	First  DeviceID
	Second DeviceID
}

// DefaultPairRules pairs the meteorological unit with the road-surface unit
// that reports after it.
func DefaultPairRules() []PairRule {
	return []PairRule{{First: DeviceMeteorological, Second: DeviceRoadSurface}}
}

// CorrelatorState is the per-connection pairing state. The zero value is Idle.
// It is a plain value: each connection owns its own copy.
type CorrelatorState struct {
	pending bool
	device  DeviceID
	fields  []DecodedField
}

// Pending returns the device whose frame is waiting for its partner.
func (s CorrelatorState) Pending() (DeviceID, bool) {
	return s.device, s.pending
}

// Reset returns the Idle state.
func (s CorrelatorState) Reset() CorrelatorState {
	return CorrelatorState{}
}

// Outcome describes what a pairing step did.
type Outcome int

const (
	// OutcomePending means the frame became the pending half.
	OutcomePending Outcome = iota
	// OutcomeMerged means the frame completed a pair.
	OutcomeMerged
	// OutcomeRepeat means the same device reported twice; the older half was dropped.
	OutcomeRepeat
	// OutcomeUnpaired means the pending half is not complementary to the new
	// frame and was dropped.
	OutcomeUnpaired
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeMerged:
		return "merged"
	case OutcomeRepeat:
		return "repeat"
	case OutcomeUnpaired:
		return "unpaired"
	default:
		return "unknown"
	}
}

// Transition is the result of Pairing.Next.
type Transition struct {
	Outcome Outcome
	// Dropped is the device whose pending half was discarded, set for
	// OutcomeRepeat and OutcomeUnpaired.
	Dropped DeviceID
	// Observation is set only for OutcomeMerged.
	Observation *Observation
}

// Pairing holds the complementary device relation. It carries no connection
// state and may be shared.
type Pairing struct {
	next map[DeviceID]map[DeviceID]struct{}
}

// NewPairing builds a Pairing from ordered rules.
func NewPairing(rules []PairRule) *Pairing {
	p := &Pairing{next: make(map[DeviceID]map[DeviceID]struct{})}
	for _, r := range rules {
		if p.next[r.First] == nil {
			p.next[r.First] = make(map[DeviceID]struct{})
		}
		p.next[r.First][r.Second] = struct{}{}
	}
	return p
}

// Complements reports whether a frame from second completes a pending frame
// from first.
func (p *Pairing) Complements(first, second DeviceID) bool {
	_, ok := p.next[first][second]
	return ok
}

// Next applies one decoded frame to state and returns the new state. When the
// frame completes a pair the merged observation is stamped with the current
// UTC time and the returned state is Idle.
func (p *Pairing) Next(state CorrelatorState, stationID string, dev DeviceID, fields []DecodedField) (CorrelatorState, Transition) {
	if !state.pending {
		return pendingState(dev, fields), Transition{Outcome: OutcomePending}
	}

	if state.device == dev {
		return pendingState(dev, fields), Transition{Outcome: OutcomeRepeat, Dropped: state.device}
	}

	if !p.Complements(state.device, dev) {
		return pendingState(dev, fields), Transition{Outcome: OutcomeUnpaired, Dropped: state.device}
	}

	merged := make(map[string]Value, len(state.fields)+len(fields))
	for _, f := range state.fields {
		merged[f.Name] = f.Value
	}
	for _, f := range fields {
		merged[f.Name] = f.Value
	}
	obs := &Observation{
		StationID:  stationID,
		CapturedAt: clock.Now().UTC(),
		Devices:    []DeviceID{state.device, dev},
		Fields:     merged,
	}
	return CorrelatorState{}, Transition{Outcome: OutcomeMerged, Observation: obs}
}

func pendingState(dev DeviceID, fields []DecodedField) CorrelatorState {
	held := make([]DecodedField, len(fields))
	copy(held, fields)
	return CorrelatorState{pending: true, device: dev, fields: held}
}

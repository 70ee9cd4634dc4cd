package fetch

// aggregator accumulates a batch's outcomes and counters.
// Callers hold the scheduler mutex.
type aggregator struct {
	state BatchState
}

func newAggregator(batchID string, total int) *aggregator {
	return &aggregator{state: BatchState{
		BatchID:  batchID,
		Total:    total,
		Outcomes: make([]Outcome, 0, total),
	}}
}

// recordSuccess appends a successful outcome and returns the updated state.
func (a *aggregator) recordSuccess(o Outcome) BatchState {
	o.Status = StatusSuccess
	a.state.Outcomes = append(a.state.Outcomes, o)
	a.state.Completed++
	return a.snapshot()
}

// recordFailure appends a failed outcome and returns the updated state.
func (a *aggregator) recordFailure(o Outcome) BatchState {
	o.Status = StatusFailed
	if o.Err != nil && o.ErrorMessage == "" {
		o.ErrorMessage = o.Err.Error()
	}
	a.state.Outcomes = append(a.state.Outcomes, o)
	a.state.Completed++
	a.state.Failed++
	return a.snapshot()
}

func (a *aggregator) record(o Outcome) BatchState {
	if o.Succeeded() {
		return a.recordSuccess(o)
	}
	return a.recordFailure(o)
}

// snapshot copies the state so observers can keep it.
func (a *aggregator) snapshot() BatchState {
	s := a.state
	s.Outcomes = make([]Outcome, len(a.state.Outcomes))
	copy(s.Outcomes, a.state.Outcomes)
	return s
}

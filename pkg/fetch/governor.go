package fetch

// governor bounds the number of admitted tasks across all batches.
// Callers hold the scheduler mutex.
type governor struct {
	limit    int
	inFlight int
}

func newGovernor(limit int) *governor {
	return &governor{limit: clamp(limit, MinMaxParallel, MaxParallelLimit)}
}

// tryAdmit takes a slot if one is free.
func (g *governor) tryAdmit() bool {
	if g.inFlight >= g.limit {
		return false
	}
	g.inFlight++
	return true
}

// release returns n slots.
func (g *governor) release(n int) {
	g.inFlight -= n
	if g.inFlight < 0 {
		g.inFlight = 0
	}
}

func (g *governor) free() int {
	if g.inFlight >= g.limit {
		return 0
	}
	return g.limit - g.inFlight
}

// setLimit changes the cap. Lowering it below inFlight only blocks new
// admissions until enough slots drain.
func (g *governor) setLimit(limit int) {
	g.limit = clamp(limit, MinMaxParallel, MaxParallelLimit)
}

package fetch

import "testing"

func TestGovernor_Admission(t *testing.T) {
	g := newGovernor(2)

	if !g.tryAdmit() || !g.tryAdmit() {
		t.Fatal("first two admissions should succeed")
	}
	if g.tryAdmit() {
		t.Fatal("third admission should fail at cap 2")
	}
	if g.free() != 0 {
		t.Errorf("free() = %d, want 0", g.free())
	}

	g.release(1)
	if g.free() != 1 {
		t.Errorf("free() after release = %d, want 1", g.free())
	}

	g.release(5)
	if g.inFlight != 0 {
		t.Errorf("inFlight = %d, want floor of 0", g.inFlight)
	}
}

func TestGovernor_SetLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"in range", 4, 4},
		{"below minimum", 0, MinMaxParallel},
		{"negative", -3, MinMaxParallel},
		{"above maximum", 20, MaxParallelLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGovernor(DefaultMaxParallel)
			g.setLimit(tt.limit)
			if g.limit != tt.want {
				t.Errorf("limit = %d, want %d", g.limit, tt.want)
			}
		})
	}
}

func TestGovernor_LowerLimitBelowInFlight(t *testing.T) {
	g := newGovernor(4)
	for i := 0; i < 4; i++ {
		g.tryAdmit()
	}

	g.setLimit(2)
	if g.free() != 0 {
		t.Errorf("free() = %d, want 0", g.free())
	}
	g.release(2)
	if g.tryAdmit() {
		t.Error("admission should wait until in-flight drops below the new limit")
	}
	g.release(1)
	if !g.tryAdmit() {
		t.Error("admission should succeed once below the new limit")
	}
}

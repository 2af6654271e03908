package anomaly

// Snapshot is a point-in-time copy of an engine's series.
type Snapshot struct {
	State       string         `json:"state"`
	SampleCount int            `json:"sample_count"`
	Temperature []Point        `json:"temperature"`
	Baseline    []Point        `json:"baseline"`
	Robust      []RobustSample `json:"robust"`
	Bounds      []Bound        `json:"bounds"`
}

// Window keeps the ingests whose raw sample satisfies from <= TS <= to,
// together with the baseline and bound of the same ingest. Robust samples are
// filtered on their own TS. A zero bound is open.
func (s Snapshot) Window(from, to int64) Snapshot {
	keep := func(ts int64) bool {
		return (from == 0 || ts >= from) && (to == 0 || ts <= to)
	}
	out := Snapshot{State: s.State, SampleCount: s.SampleCount}
	for i, p := range s.Temperature {
		if !keep(p.TS) {
			continue
		}
		out.Temperature = append(out.Temperature, p)
		if i < len(s.Baseline) {
			out.Baseline = append(out.Baseline, s.Baseline[i])
		}
		if i < len(s.Bounds) {
			out.Bounds = append(out.Bounds, s.Bounds[i])
		}
	}
	for _, r := range s.Robust {
		if keep(r.TS) {
			out.Robust = append(out.Robust, r)
		}
	}
	return out
}

// Classifications pairs every raw sample with the bound of the same ingest.
func (s Snapshot) Classifications() []Classification {
	n := len(s.Temperature)
	if len(s.Bounds) < n {
		n = len(s.Bounds)
	}
	out := make([]Classification, n)
	for i := 0; i < n; i++ {
		out[i] = Classify(s.Temperature[i].Value, s.Bounds[i])
	}
	return out
}

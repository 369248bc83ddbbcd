package domain

// StationLookup resolves station ids to stations. *StationTable satisfies it.
type StationLookup interface {
	Lookup(id string) (Station, bool)
}

// Attach fills the measurement's coordinates from the station table. A miss
// returns a *JoinGap and the measurement unchanged.
func Attach(m Measurement, stations StationLookup) (Measurement, error) {
	s, ok := stations.Lookup(m.StationID)
	if !ok {
		return m, &JoinGap{StationID: m.StationID}
	}
	m.Lat = s.Latitude
	m.Lon = s.Longitude
	m.Located = true
	return m, nil
}

// DefaultGapSampleSize bounds the distinct unmatched ids a Coverage keeps.
const DefaultGapSampleSize = 10

// Coverage tallies join outcomes for one variant. Matched + Gaps == Total
// holds after every Observe. It is not safe for concurrent use.
type Coverage struct {
	Total   int64
	Matched int64
	Gaps    int64

	sampleSize int
	sample     []string
	seen       map[string]struct{}
}

// NewCoverage returns a Coverage keeping at most sampleSize distinct gap ids.
func NewCoverage(sampleSize int) *Coverage {
	if sampleSize < 0 {
		sampleSize = 0
	}
	return &Coverage{sampleSize: sampleSize, seen: make(map[string]struct{})}
}

// Observe records the outcome of one Attach call.
func (c *Coverage) Observe(m Measurement, err error) {
	c.Total++
	if err == nil {
		c.Matched++
		return
	}
	c.Gaps++
	if len(c.sample) >= c.sampleSize {
		return
	}
	if _, ok := c.seen[m.StationID]; ok {
		return
	}
	c.seen[m.StationID] = struct{}{}
	c.sample = append(c.sample, m.StationID)
}

// GapSample returns the first distinct unmatched station ids, in the order seen.
func (c *Coverage) GapSample() []string {
	out := make([]string, len(c.sample))
	copy(out, c.sample)
	return out
}

// Complete reports full coordinate coverage: at least one row was checked and
// none missed.
func (c *Coverage) Complete() bool {
	return c.Total > 0 && c.Gaps == 0
}

// Ratio returns Matched / Total, or 0 when nothing was observed.
func (c *Coverage) Ratio() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Matched) / float64(c.Total)
}

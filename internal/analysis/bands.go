package analysis

// Band is a named frequency range used for coarse energy queries.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range into six named bands. The treble
// band is capped at Nyquist by EnergyInRange.
func DefaultBands() []Band {
	return []Band{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: 20000},
	}
}

// BandEnergies writes the peak magnitude of each band into dst, which must
// hold at least len(bands) values. It returns dst[:len(bands)].
func (a *Analyzer) BandEnergies(bands []Band, dst []float64) []float64 {
	dst = dst[:len(bands)]
	for i, b := range bands {
		dst[i] = a.EnergyInRange(b.LowHz, b.HighHz)
	}
	return dst
}

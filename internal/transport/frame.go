package transport

// LayerFrame carries one layer's bars.
type LayerFrame struct {
	Name string    `json:"name"`
	Bars []float64 `json:"bars"`
}

// BandValue is the peak magnitude of a named band.
type BandValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Frame is one analysed tick.
type Frame struct {
	Seq      uint64       `json:"seq"`
	Time     float64      `json:"time"`     // seconds since the loop started, or the export offset
	Position float64      `json:"position"` // playback position in seconds, 0 without a decoder
	Beat     bool         `json:"beat"`
	Peak     float32      `json:"peak"`
	Bands    []BandValue  `json:"bands,omitempty"`
	Layers   []LayerFrame `json:"layers"`
}

// Layer returns the named layer's bars or nil.
func (f *Frame) Layer(name string) []float64 {
	for i := range f.Layers {
		if f.Layers[i].Name == name {
			return f.Layers[i].Bars
		}
	}
	return nil
}

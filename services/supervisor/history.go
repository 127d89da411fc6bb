package supervisor

import "bmscode-go/types"

// DetectHistory keeps the last four detect classifications, two bits
// each, newest in the low bits.
type DetectHistory uint8

const historyDepth = 4

func (h *DetectHistory) Record(d types.Detect) { *h = *h<<2 | DetectHistory(d&3) }

// At returns the entry i ticks back, 0 being the newest.
func (h DetectHistory) At(i int) types.Detect { return types.Detect(h >> (2 * i) & 3) }

func (h DetectHistory) Contains(d types.Detect) bool {
	for i := 0; i < historyDepth; i++ {
		if h.At(i) == d {
			return true
		}
	}
	return false
}

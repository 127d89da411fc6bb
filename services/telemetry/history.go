package telemetry

import (
	"bmscode-go/types"
	"bmscode-go/x/mathx"
)

// MaxWindow bounds the averaging depth.
const MaxWindow = 8

// VoltageHistory is a fixed ring of per-cell samples used for a rolling
// average. Until the ring has filled, the divisor is the number of samples
// actually pushed, so a cold start is not dragged towards zero.
type VoltageHistory struct {
	window  int
	samples [MaxWindow][types.NumCells]uint16
	oldest  int
	valid   int
}

func NewVoltageHistory(window int) *VoltageHistory {
	return &VoltageHistory{window: mathx.Clamp(window, 1, MaxWindow)}
}

// Push stores s over the oldest slot and returns the new averages.
func (h *VoltageHistory) Push(s [types.NumCells]uint16) [types.NumCells]uint16 {
	h.samples[h.oldest] = s
	h.oldest = (h.oldest + 1) % h.window
	if h.valid < h.window {
		h.valid++
	}
	return h.Average()
}

// Average returns the per-cell mean over the valid samples.
func (h *VoltageHistory) Average() [types.NumCells]uint16 {
	var out [types.NumCells]uint16
	if h.valid == 0 {
		return out
	}
	for c := 0; c < types.NumCells; c++ {
		var sum uint32
		for i := 0; i < h.valid; i++ {
			sum += uint32(h.samples[i][c])
		}
		out[c] = uint16(sum / uint32(h.valid))
	}
	return out
}

func (h *VoltageHistory) Valid() int { return h.valid }

// CalcCellStats scans the cells once. Ties go to the lowest cell id.
func CalcCellStats(cells [types.NumCells]uint16) types.CellStats {
	maxI, minI := 0, 0
	for i := 1; i < types.NumCells; i++ {
		if cells[i] > cells[maxI] {
			maxI = i
		}
		if cells[i] < cells[minI] {
			minI = i
		}
	}
	return types.CellStats{
		MaxCell:     uint8(maxI + 1),
		MaxMilliV:   cells[maxI],
		MinCell:     uint8(minI + 1),
		MinMilliV:   cells[minI],
		DeltaMilliV: cells[maxI] - cells[minI],
	}
}

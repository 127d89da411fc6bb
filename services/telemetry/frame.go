package telemetry

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"bmscode-go/types"
)

// Frame is the per-tick record streamed to a host monitor. CBOR items are
// self-delimiting, so frames are written back to back with no framing.
type Frame struct {
	Tick      uint32          `cbor:"1,keyasint"`
	State     types.State     `cbor:"2,keyasint"`
	Detect    types.Detect    `cbor:"3,keyasint"`
	Telemetry types.Telemetry `cbor:"4,keyasint"`
	Past      uint16          `cbor:"5,keyasint"`
	Current   uint16          `cbor:"6,keyasint"`
	FETs      uint8           `cbor:"7,keyasint"`
	Runtime   uint32          `cbor:"8,keyasint"`
	CommErrs  uint8           `cbor:"9,keyasint,omitempty"`
}

func WriteFrame(w io.Writer, f Frame) error {
	return cbor.NewEncoder(w).Encode(f)
}

// FrameReader decodes a stream of frames.
type FrameReader struct {
	dec *cbor.Decoder
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next frame, or io.EOF at a clean end of stream.
func (fr *FrameReader) Next() (Frame, error) {
	var f Frame
	err := fr.dec.Decode(&f)
	return f, err
}

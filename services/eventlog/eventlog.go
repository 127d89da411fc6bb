// Package eventlog owns the non-volatile byte layout: an identification
// banner, the total-runtime accumulator and a rotating fault-event log.
//
//	0x00..0x17  banner (ASCII, zero padded)
//	0x19        next event slot
//	0x1C..0x1F  runtime ticks, big-endian
//	0x20..0xFF  events, 6 bytes each
package eventlog

import (
	"encoding/binary"
	"strings"

	"bmscode-go/errcode"
	"bmscode-go/services/fault"
)

const (
	BannerAddr  uint8 = 0x00
	BannerLen         = 0x18
	CursorAddr  uint8 = 0x19
	RuntimeAddr uint8 = 0x1C
	LogBase     uint8 = 0x20
	EventSize         = 6
	Bound             = 0xFF // last usable address
	Size              = Bound + 1
)

// lastSlot is the highest address at which a whole event fits.
const lastSlot = Bound - EventSize + 1

// EEPROM is byte-addressable non-volatile storage.
type EEPROM interface {
	Load(addr uint8) (uint8, error)
	Store(addr uint8, v uint8) error
}

// Flusher is storage that buffers stores, such as a RAM shadow of a flash
// block. Each layout write flushes once after its last store.
type Flusher interface {
	Flush() error
}

func flush(m EEPROM, op string) error {
	if f, ok := m.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return storeErr(op, err)
		}
	}
	return nil
}

// Event is one persisted fault episode.
type Event struct {
	Reason  fault.Reason
	Runtime uint32
}

func (e Event) bytes() [EventSize]byte {
	var b [EventSize]byte
	lb := e.Reason.LogBytes()
	b[0], b[1] = lb[0], lb[1]
	binary.BigEndian.PutUint32(b[2:], e.Runtime)
	return b
}

func storeErr(op string, err error) error { return errcode.Wrap(errcode.Storage, op, err) }

// LoadRuntime reads the runtime accumulator.
func LoadRuntime(m EEPROM) (uint32, error) {
	var b [4]byte
	for i := range b {
		v, err := m.Load(RuntimeAddr + uint8(i))
		if err != nil {
			return 0, storeErr("eventlog.LoadRuntime", err)
		}
		b[i] = v
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// StoreRuntime writes v big-endian at addr.
func StoreRuntime(m EEPROM, addr uint8, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	for i, x := range b {
		if err := m.Store(addr+uint8(i), x); err != nil {
			return storeErr("eventlog.StoreRuntime", err)
		}
	}
	return flush(m, "eventlog.StoreRuntime")
}

// NextSlot returns the slot after addr, wrapping to LogBase when another
// event would not fit below Bound.
func NextSlot(addr uint8) uint8 {
	if int(addr)+2*EventSize-1 <= Bound {
		return addr + EventSize
	}
	return LogBase
}

func validSlot(addr uint8) bool {
	return addr >= LogBase && addr <= lastSlot && (addr-LogBase)%EventSize == 0
}

// Append writes e at the cursor and advances it. A corrupt cursor is
// treated as LogBase. It returns the address written.
func Append(m EEPROM, e Event) (uint8, error) {
	addr, err := m.Load(CursorAddr)
	if err != nil {
		return 0, storeErr("eventlog.Append", err)
	}
	if !validSlot(addr) {
		addr = LogBase
	}
	for i, x := range e.bytes() {
		if err := m.Store(addr+uint8(i), x); err != nil {
			return addr, storeErr("eventlog.Append", err)
		}
	}
	if err := m.Store(CursorAddr, NextSlot(addr)); err != nil {
		return addr, storeErr("eventlog.Append", err)
	}
	return addr, flush(m, "eventlog.Append")
}

// Format writes the banner, zeroes the runtime and points the cursor at
// the first slot. Existing events are left in place.
func Format(m EEPROM, banner string) error {
	for i := 0; i < BannerLen; i++ {
		var c byte
		if i < len(banner) {
			c = banner[i]
		}
		if err := m.Store(BannerAddr+uint8(i), c); err != nil {
			return storeErr("eventlog.Format", err)
		}
	}
	if err := m.Store(CursorAddr, LogBase); err != nil {
		return storeErr("eventlog.Format", err)
	}
	return StoreRuntime(m, RuntimeAddr, 0)
}

// Image is a decoded storage dump.
type Image struct {
	Banner  string
	Runtime uint32
	Cursor  uint8
	// Events in write order, oldest first. Blank slots are skipped.
	Events []Slot
}

type Slot struct {
	Addr uint8
	Event
}

// Decode parses a full storage dump.
func Decode(img []byte) (Image, error) {
	if len(img) != Size {
		return Image{}, &errcode.E{C: errcode.BadImage, Op: "eventlog.Decode", Msg: "image must be 256 bytes"}
	}
	out := Image{
		Banner:  strings.TrimRight(string(img[BannerAddr:BannerAddr+BannerLen]), "\x00\xff "),
		Runtime: binary.BigEndian.Uint32(img[RuntimeAddr : RuntimeAddr+4]),
		Cursor:  img[CursorAddr],
	}
	start := out.Cursor
	if !validSlot(start) {
		start = LogBase
	}
	addr := start
	for {
		s := img[addr : int(addr)+EventSize]
		if !blank(s) {
			out.Events = append(out.Events, Slot{Addr: addr, Event: Event{
				Reason:  fault.FromLogBytes([2]byte{s[0], s[1]}),
				Runtime: binary.BigEndian.Uint32(s[2:]),
			}})
		}
		addr = NextSlot(addr)
		if addr == start {
			break
		}
	}
	return out, nil
}

// blank reports an erased (0xFF) or never-written (0x00) slot.
func blank(s []byte) bool {
	ff, zero := true, true
	for _, b := range s {
		ff = ff && b == 0xFF
		zero = zero && b == 0
	}
	return ff || zero
}

// Snapshot reads the whole storage into an image buffer.
func Snapshot(m EEPROM) ([]byte, error) {
	img := make([]byte, Size)
	for i := range img {
		v, err := m.Load(uint8(i))
		if err != nil {
			return nil, storeErr("eventlog.Snapshot", err)
		}
		img[i] = v
	}
	return img, nil
}

// Memory is an in-RAM EEPROM, erased to 0xFF.
type Memory [Size]byte

func NewMemory() *Memory {
	var m Memory
	for i := range m {
		m[i] = 0xFF
	}
	return &m
}

func (m *Memory) Load(addr uint8) (uint8, error)  { return m[addr], nil }
func (m *Memory) Store(addr uint8, v uint8) error { m[addr] = v; return nil }

package models

import "sort"

// LayoutKind is the closed set of supported geometric arrangements.
type LayoutKind string

const (
	LayoutPiP       LayoutKind = "pip"
	LayoutSplitH    LayoutKind = "split_h"
	LayoutSplitV    LayoutKind = "split_v"
	LayoutGrid2x2   LayoutKind = "grid_2x2"
	LayoutMultiPiP2 LayoutKind = "multi_pip_2"
	LayoutMultiPiP3 LayoutKind = "multi_pip_3"
	LayoutMultiPiP4 LayoutKind = "multi_pip_4"
	LayoutDVDPiP    LayoutKind = "dvd_pip"
	LayoutCustom    LayoutKind = "custom"
)

// MaxStreams is the maximum number of input streams per layout.
const MaxStreams = 5

// Frame dimensions of the composed output.
const (
	FrameWidth  = 1920
	FrameHeight = 1080
)

// slotOrders maps each fixed layout kind to its canonical slot order.
// Custom layouts derive their order from slot geometry instead.
var slotOrders = map[LayoutKind][]string{
	LayoutPiP:       {"main", "inset"},
	LayoutSplitH:    {"left", "right"},
	LayoutSplitV:    {"top", "bottom"},
	LayoutGrid2x2:   {"slot1", "slot2", "slot3", "slot4"},
	LayoutMultiPiP2: {"main", "inset1", "inset2"},
	LayoutMultiPiP3: {"main", "inset1", "inset2", "inset3"},
	LayoutMultiPiP4: {"main", "inset1", "inset2", "inset3", "inset4"},
	LayoutDVDPiP:    {"main", "inset"},
}

// IsValid reports whether k names a known layout kind.
func (k LayoutKind) IsValid() bool {
	if k == LayoutCustom {
		return true
	}
	_, ok := slotOrders[k]
	return ok
}

// SlotOrder returns the canonical slot order for a fixed layout kind.
// It returns nil for LayoutCustom and unknown kinds.
func (k LayoutKind) SlotOrder() []string {
	order, ok := slotOrders[k]
	if !ok {
		return nil
	}
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// CustomSlot is a free-form rectangular region of the composed frame.
type CustomSlot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Border bool   `json:"border"`
}

// Area returns the slot's pixel area, used for z-ordering.
func (s CustomSlot) Area() int {
	return s.Width * s.Height
}

// SortSlotsByArea returns a copy of slots ordered descending by area, so
// the largest slot composes first and sits at the bottom of the z-stack.
// Ties break on slot id to keep the order deterministic.
func SortSlotsByArea(slots []CustomSlot) []CustomSlot {
	out := make([]CustomSlot, len(slots))
	copy(out, slots)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Area() != out[j].Area() {
			return out[i].Area() > out[j].Area()
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LayoutConfig is the full declarative description of a composition.
type LayoutConfig struct {
	Kind LayoutKind `json:"layout"`

	// Streams maps slot names to channel ids.
	Streams map[string]string `json:"streams"`

	// AudioSlot names the slot whose audio leads the mix.
	AudioSlot string `json:"audio_source"`

	// Volumes maps slot names to gain in [0, 1]. Slots absent from the
	// map default to 1.0 for the audio slot and 0.0 otherwise.
	Volumes map[string]float64 `json:"volumes,omitempty"`

	// CustomSlots carries the geometry for LayoutCustom.
	CustomSlots []CustomSlot `json:"custom_slots,omitempty"`
}

// ClampVolume bounds a gain value to [0, 1].
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Normalize clamps all volumes and fills defaults: the audio slot gets
// 1.0 and every other assigned slot 0.0 unless a value was supplied.
func (l *LayoutConfig) Normalize() {
	volumes := make(map[string]float64, len(l.Streams))
	for slot := range l.Streams {
		if slot == l.AudioSlot {
			volumes[slot] = 1.0
		} else {
			volumes[slot] = 0.0
		}
	}
	for slot, v := range l.Volumes {
		if _, assigned := volumes[slot]; assigned {
			volumes[slot] = ClampVolume(v)
		}
	}
	l.Volumes = volumes
}

// Clone returns a deep copy of the layout.
func (l *LayoutConfig) Clone() *LayoutConfig {
	if l == nil {
		return nil
	}
	out := &LayoutConfig{
		Kind:      l.Kind,
		AudioSlot: l.AudioSlot,
	}
	if l.Streams != nil {
		out.Streams = make(map[string]string, len(l.Streams))
		for k, v := range l.Streams {
			out.Streams[k] = v
		}
	}
	if l.Volumes != nil {
		out.Volumes = make(map[string]float64, len(l.Volumes))
		for k, v := range l.Volumes {
			out.Volumes[k] = v
		}
	}
	if l.CustomSlots != nil {
		out.CustomSlots = make([]CustomSlot, len(l.CustomSlots))
		copy(out.CustomSlots, l.CustomSlots)
	}
	return out
}

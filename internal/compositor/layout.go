// Package compositor validates layout configurations and compiles them
// into complete encoder argument vectors: input blocks, a filter graph
// producing [v] and [a], and the encoder profile's output arguments.
package compositor

import (
	"math"

	"github.com/mosaictv/mosaic/internal/models"
)

// Custom slot geometry bounds.
const (
	minSlotWidth  = 320
	minSlotHeight = 180
	maxSlotWidth  = models.FrameWidth
	maxSlotHeight = models.FrameHeight

	// aspectTolerance is the allowed relative deviation from 16:9.
	aspectTolerance = 0.01
)

// Validate checks a layout against its kind's invariants. It returns a
// bad-layout or bad-geometry DomainError, never mutating the layout.
func Validate(layout *models.LayoutConfig) error {
	if layout == nil {
		return models.NewError(models.ErrKindBadLayout, "layout is required")
	}
	if !layout.Kind.IsValid() {
		return models.NewError(models.ErrKindBadLayout, "unknown layout kind %q", layout.Kind)
	}
	if len(layout.Streams) == 0 {
		return models.NewError(models.ErrKindBadLayout, "no streams assigned")
	}
	if len(layout.Streams) > models.MaxStreams {
		return models.NewError(models.ErrKindBadLayout,
			"%d streams assigned, maximum is %d", len(layout.Streams), models.MaxStreams)
	}

	if layout.Kind == models.LayoutCustom {
		if err := validateCustom(layout); err != nil {
			return err
		}
	} else {
		order := layout.Kind.SlotOrder()
		if len(layout.Streams) != len(order) {
			return models.NewError(models.ErrKindBadLayout,
				"layout %q needs %d slots, got %d", layout.Kind, len(order), len(layout.Streams))
		}
		for _, slot := range order {
			if _, ok := layout.Streams[slot]; !ok {
				return models.NewError(models.ErrKindBadLayout,
					"layout %q is missing slot %q", layout.Kind, slot)
			}
		}
	}

	if layout.AudioSlot == "" {
		return models.NewError(models.ErrKindBadLayout, "audio_source is required")
	}
	if _, ok := layout.Streams[layout.AudioSlot]; !ok {
		return models.NewError(models.ErrKindBadLayout,
			"audio_source %q is not an assigned slot", layout.AudioSlot)
	}

	return nil
}

func validateCustom(layout *models.LayoutConfig) error {
	if len(layout.CustomSlots) == 0 {
		return models.NewError(models.ErrKindBadLayout, "custom layout needs custom_slots")
	}
	if len(layout.CustomSlots) > models.MaxStreams {
		return models.NewError(models.ErrKindBadLayout,
			"%d custom slots, maximum is %d", len(layout.CustomSlots), models.MaxStreams)
	}

	seen := make(map[string]bool, len(layout.CustomSlots))
	for _, slot := range layout.CustomSlots {
		if slot.ID == "" {
			return models.NewError(models.ErrKindBadLayout, "custom slot without id")
		}
		if seen[slot.ID] {
			return models.NewError(models.ErrKindBadLayout, "duplicate custom slot id %q", slot.ID)
		}
		seen[slot.ID] = true

		if err := validateGeometry(slot); err != nil {
			return err
		}
		if _, ok := layout.Streams[slot.ID]; !ok {
			return models.NewError(models.ErrKindBadLayout, "custom slot %q has no stream assigned", slot.ID)
		}
	}

	for assigned := range layout.Streams {
		if !seen[assigned] {
			return models.NewError(models.ErrKindBadLayout, "stream assigned to unknown slot %q", assigned)
		}
	}

	return nil
}

func validateGeometry(slot models.CustomSlot) error {
	if slot.Width < minSlotWidth || slot.Width > maxSlotWidth {
		return models.NewError(models.ErrKindBadGeometry,
			"slot %q width %d outside [%d, %d]", slot.ID, slot.Width, minSlotWidth, maxSlotWidth)
	}
	if slot.Height < minSlotHeight || slot.Height > maxSlotHeight {
		return models.NewError(models.ErrKindBadGeometry,
			"slot %q height %d outside [%d, %d]", slot.ID, slot.Height, minSlotHeight, maxSlotHeight)
	}
	if slot.X < 0 || slot.X+slot.Width > models.FrameWidth {
		return models.NewError(models.ErrKindBadGeometry,
			"slot %q x range [%d, %d] outside frame", slot.ID, slot.X, slot.X+slot.Width)
	}
	if slot.Y < 0 || slot.Y+slot.Height > models.FrameHeight {
		return models.NewError(models.ErrKindBadGeometry,
			"slot %q y range [%d, %d] outside frame", slot.ID, slot.Y, slot.Y+slot.Height)
	}

	const target = 16.0 / 9.0
	ratio := float64(slot.Width) / float64(slot.Height)
	if math.Abs(ratio-target)/target > aspectTolerance {
		return models.NewError(models.ErrKindBadGeometry,
			"slot %q aspect %d:%d deviates more than 1%% from 16:9", slot.ID, slot.Width, slot.Height)
	}

	return nil
}

// SlotOrder returns the canonical input order for a validated layout:
// the kind's fixed order, or area-descending for custom layouts.
func SlotOrder(layout *models.LayoutConfig) []string {
	if layout.Kind != models.LayoutCustom {
		return layout.Kind.SlotOrder()
	}
	sorted := models.SortSlotsByArea(layout.CustomSlots)
	order := make([]string, len(sorted))
	for i, slot := range sorted {
		order[i] = slot.ID
	}
	return order
}

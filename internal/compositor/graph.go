package compositor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mosaictv/mosaic/internal/models"
)

// Inset geometry constants shared by the preset layouts.
const (
	pipInsetWidth  = 640
	pipInsetHeight = 360
	pipBorder      = 8
	pipMargin      = 40

	multiInsetWidth  = 384
	multiInsetHeight = 216
	multiBorder      = 4
	multiGap         = 20
	multiMargin      = 40

	dvdInsetWidth  = 480
	dvdInsetHeight = 270

	// dvdSpeed is the bounce speed in pixels per second on each axis.
	dvdSpeed = 120

	customBorder = 4
)

// fitExpr normalises input idx into an exact w x h box: resampled to
// 30 fps, aspect-preserving scale, black letterbox, square pixels.
func fitExpr(idx, w, h int) string {
	return fmt.Sprintf(
		"[%d:v]fps=30,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black,setsar=1",
		idx, w, h, w, h)
}

func fitBox(idx, w, h int, label string) string {
	return fmt.Sprintf("%s[%s]", fitExpr(idx, w, h), label)
}

// shrinkExpr scales input idx to fit within w x h without padding, so
// the overlay tracks the stream's real aspect ratio.
func shrinkExpr(idx, w, h int) string {
	return fmt.Sprintf(
		"[%d:v]fps=30,scale=%d:%d:force_original_aspect_ratio=decrease,setsar=1",
		idx, w, h)
}

// canvas produces a black 1920x1080 background source.
func canvas(label string) string {
	return fmt.Sprintf("color=c=black:s=%dx%d:r=30[%s]",
		models.FrameWidth, models.FrameHeight, label)
}

// videoGraph builds the video filter chains for a validated layout. The
// final chain writes to outLabel.
func videoGraph(layout *models.LayoutConfig, order []string, outLabel string) []string {
	switch layout.Kind {
	case models.LayoutPiP:
		return pipGraph(outLabel)
	case models.LayoutSplitH:
		return splitGraph(true, outLabel)
	case models.LayoutSplitV:
		return splitGraph(false, outLabel)
	case models.LayoutGrid2x2:
		return gridGraph(outLabel)
	case models.LayoutMultiPiP2, models.LayoutMultiPiP3, models.LayoutMultiPiP4:
		return multiPipGraph(len(order)-1, outLabel)
	case models.LayoutDVDPiP:
		return dvdPipGraph(outLabel)
	case models.LayoutCustom:
		return customGraph(layout, order, outLabel)
	default:
		return nil
	}
}

func pipGraph(out string) []string {
	return []string{
		fitBox(0, models.FrameWidth, models.FrameHeight, "base"),
		fmt.Sprintf("%s,pad=iw+%d:ih+%d:%d:%d:color=white[pip]",
			shrinkExpr(1, pipInsetWidth, pipInsetHeight),
			2*pipBorder, 2*pipBorder, pipBorder, pipBorder),
		fmt.Sprintf("[base][pip]overlay=W-w-%d:H-h-%d:shortest=1[%s]", pipMargin, pipMargin, out),
	}
}

func splitGraph(horizontal bool, out string) []string {
	var w, h, x, y int
	if horizontal {
		w, h = models.FrameWidth/2, models.FrameHeight
		x, y = w, 0
	} else {
		w, h = models.FrameWidth, models.FrameHeight/2
		x, y = 0, h
	}
	return []string{
		canvas("bg"),
		fitBox(0, w, h, "s0"),
		fitBox(1, w, h, "s1"),
		"[bg][s0]overlay=0:0:shortest=1[t0]",
		fmt.Sprintf("[t0][s1]overlay=%d:%d[%s]", x, y, out),
	}
}

func gridGraph(out string) []string {
	w, h := models.FrameWidth/2, models.FrameHeight/2
	positions := [4][2]int{{0, 0}, {w, 0}, {0, h}, {w, h}}

	chains := []string{canvas("bg")}
	for i := 0; i < 4; i++ {
		chains = append(chains, fitBox(i, w, h, fmt.Sprintf("s%d", i)))
	}

	prev := "bg"
	for i, pos := range positions {
		next := fmt.Sprintf("t%d", i)
		if i == len(positions)-1 {
			next = out
		}
		extra := ""
		if i == 0 {
			extra = ":shortest=1"
		}
		chains = append(chains, fmt.Sprintf("[%s][s%d]overlay=%d:%d%s[%s]",
			prev, i, pos[0], pos[1], extra, next))
		prev = next
	}
	return chains
}

func multiPipGraph(insets int, out string) []string {
	boxW := multiInsetWidth + 2*multiBorder
	boxH := multiInsetHeight + 2*multiBorder
	y := models.FrameHeight - multiMargin - boxH

	chains := []string{fitBox(0, models.FrameWidth, models.FrameHeight, "base")}
	for i := 1; i <= insets; i++ {
		chains = append(chains, fmt.Sprintf(
			"%s,pad=%d:%d:%d:%d:color=white[ins%d]",
			fitExpr(i, multiInsetWidth, multiInsetHeight),
			boxW, boxH, multiBorder, multiBorder, i))
	}

	prev := "base"
	for i := 1; i <= insets; i++ {
		// inset1 sits rightmost, later insets march left
		x := models.FrameWidth - multiMargin - boxW - (i-1)*(boxW+multiGap)
		next := fmt.Sprintf("t%d", i)
		if i == insets {
			next = out
		}
		extra := ""
		if i == 1 {
			extra = ":shortest=1"
		}
		chains = append(chains, fmt.Sprintf("[%s][ins%d]overlay=%d:%d%s[%s]", prev, i, x, y, extra, next))
		prev = next
	}
	return chains
}

func dvdPipGraph(out string) []string {
	// Triangle-wave trajectory: linear motion at a fixed speed with
	// reflections at the frame edges on each axis independently.
	return []string{
		fitBox(0, models.FrameWidth, models.FrameHeight, "base"),
		fmt.Sprintf("%s[dvd]", shrinkExpr(1, dvdInsetWidth, dvdInsetHeight)),
		fmt.Sprintf(
			"[base][dvd]overlay=x='abs(mod(t*%d,2*(W-w))-(W-w))':y='abs(mod(t*%d,2*(H-h))-(H-h))':shortest=1[%s]",
			dvdSpeed, dvdSpeed, out),
	}
}

func customGraph(layout *models.LayoutConfig, order []string, out string) []string {
	slotsByID := make(map[string]models.CustomSlot, len(layout.CustomSlots))
	for _, slot := range layout.CustomSlots {
		slotsByID[slot.ID] = slot
	}

	chains := []string{canvas("bg")}
	for i, id := range order {
		slot := slotsByID[id]
		chain := fitExpr(i, slot.Width, slot.Height)
		if slot.Border {
			chain = fmt.Sprintf("%s,pad=%d:%d:%d:%d:color=white",
				chain, slot.Width+2*customBorder, slot.Height+2*customBorder,
				customBorder, customBorder)
		}
		chains = append(chains, fmt.Sprintf("%s[s%d]", chain, i))
	}

	prev := "bg"
	for i, id := range order {
		slot := slotsByID[id]
		next := fmt.Sprintf("t%d", i)
		if i == len(order)-1 {
			next = out
		}
		extra := ""
		if i == 0 {
			extra = ":shortest=1"
		}
		chains = append(chains, fmt.Sprintf("[%s][s%d]overlay=%d:%d%s[%s]",
			prev, i, slot.X, slot.Y, extra, next))
		prev = next
	}
	return chains
}

// audioGraph builds the audio chains ending in [a]. It reports whether a
// trailing silent lavfi input must be appended to the input list.
func audioGraph(layout *models.LayoutConfig, order []string) ([]string, bool) {
	audioIdx := 0
	nonZero := 0
	for i, slot := range order {
		if layout.Volumes[slot] > 0 {
			nonZero++
		}
		if slot == layout.AudioSlot {
			audioIdx = i
		}
	}

	// Single audible stream that is also the chosen audio slot: no mix.
	if nonZero == 1 && layout.Volumes[layout.AudioSlot] > 0 {
		return []string{fmt.Sprintf(
			"[%d:a]aresample=async=1:first_pts=0,volume=%s[a]",
			audioIdx, formatVolume(layout.Volumes[layout.AudioSlot]))}, false
	}

	// Mix path: every slot scaled by its volume plus a silent source so
	// the [a] label exists even when sources carry no usable audio.
	chains := make([]string, 0, len(order)+1)
	labels := make([]string, 0, len(order)+1)
	for i, slot := range order {
		chains = append(chains, fmt.Sprintf(
			"[%d:a]aresample=async=1:first_pts=0,volume=%s[a%d]",
			i, formatVolume(layout.Volumes[slot]), i))
		labels = append(labels, fmt.Sprintf("[a%d]", i))
	}
	labels = append(labels, fmt.Sprintf("[%d:a]", len(order)))

	chains = append(chains, fmt.Sprintf(
		"%samix=inputs=%d:duration=first:normalize=0[a]",
		strings.Join(labels, ""), len(labels)))
	return chains, true
}

func formatVolume(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

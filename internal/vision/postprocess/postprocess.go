// Package postprocess decodes raw detector output into geometric
// detections: per-anchor class selection, confidence filtering,
// rescaling into original-image coordinates, and class-aware
// non-maximum suppression.
package postprocess

import (
	"fmt"
	"sort"
)

// Tensor is a dense row-major float32 matrix. The detector's raw output
// is shaped (4+numClasses) rows by numAnchors columns: rows 0-3 carry
// (centerX, centerY, width, height) in model-input pixels, rows 4..
// carry per-class scores.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

// NewTensor allocates a zeroed rows x cols tensor.
func NewTensor(rows, cols int) Tensor {
	return Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the element at row r, column c. Bounds are the caller's
// responsibility, as with a raw slice.
func (t Tensor) At(r, c int) float32 {
	return t.Data[r*t.Cols+c]
}

// Set writes the element at row r, column c.
func (t *Tensor) Set(r, c int, v float32) {
	t.Data[r*t.Cols+c] = v
}

// Empty reports whether the tensor carries no usable data: non-positive
// dimensions or a backing slice shorter than Rows*Cols.
func (t Tensor) Empty() bool {
	return t.Rows <= 0 || t.Cols <= 0 || len(t.Data) < t.Rows*t.Cols
}

// Rect is an axis-aligned box in pixel coordinates.
type Rect struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// Area returns Width*Height; negative dimensions yield a meaningless
// value, callers filter degenerate boxes before using it.
func (r Rect) Area() float32 {
	return r.Width * r.Height
}

// IoU returns intersection-over-union of two rectangles: 0 when they do
// not overlap or the union area is non-positive.
func IoU(a, b Rect) float32 {
	x1 := max32(a.X, b.X)
	y1 := max32(a.Y, b.Y)
	x2 := min32(a.X+a.Width, b.X+b.Width)
	y2 := min32(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Detection is one surviving anchor, in original-image pixel coordinates.
// Detections are created fresh for every frame and discarded once the
// tracker has consumed them.
type Detection struct {
	Box        Rect
	Confidence float32
	ClassID    int
}

// Postprocessor converts a raw score tensor into a confidence-ordered,
// NMS-filtered detection list. The model input side is an explicit
// parameter: rescaling silently assumes the detector ran at Side x Side,
// so a mismatched side would corrupt every coordinate.
type Postprocessor struct {
	side          float32
	confThreshold float32
	iouThreshold  float32
}

// New validates the parameters and returns a Postprocessor. Side must be
// positive; both thresholds must lie in [0, 1].
func New(side int, confThreshold, iouThreshold float32) (*Postprocessor, error) {
	if side <= 0 {
		return nil, fmt.Errorf("model input side must be positive, got %d", side)
	}
	if confThreshold < 0 || confThreshold > 1 {
		return nil, fmt.Errorf("confidence threshold must be in [0,1], got %f", confThreshold)
	}
	if iouThreshold < 0 || iouThreshold > 1 {
		return nil, fmt.Errorf("iou threshold must be in [0,1], got %f", iouThreshold)
	}
	return &Postprocessor{
		side:          float32(side),
		confThreshold: confThreshold,
		iouThreshold:  iouThreshold,
	}, nil
}

// Side returns the configured model input side in pixels.
func (p *Postprocessor) Side() int { return int(p.side) }

// Decode turns the raw prediction tensor into detections scaled and
// clipped to an origWidth x origHeight image, sorted by confidence
// descending, with class-aware NMS applied. A malformed tensor (fewer
// than 5 rows, no anchors, short data) yields an empty list, not an
// error.
func (p *Postprocessor) Decode(pred Tensor, origWidth, origHeight int) []Detection {
	if pred.Empty() || pred.Rows < 5 {
		return nil
	}

	w := float32(origWidth)
	h := float32(origHeight)
	scaleX := w / p.side
	scaleY := h / p.side

	var detections []Detection
	for anchor := 0; anchor < pred.Cols; anchor++ {
		// Best class for this anchor.
		maxConf := float32(0)
		maxClass := -1
		for row := 4; row < pred.Rows; row++ {
			if conf := pred.At(row, anchor); conf > maxConf {
				maxConf = conf
				maxClass = row - 4
			}
		}
		if maxConf < p.confThreshold {
			continue
		}

		centerX := pred.At(0, anchor)
		centerY := pred.At(1, anchor)
		boxW := pred.At(2, anchor)
		boxH := pred.At(3, anchor)

		// Center form to corner form, then into original-image pixels.
		x1 := (centerX - boxW/2) * scaleX
		y1 := (centerY - boxH/2) * scaleY
		boxW *= scaleX
		boxH *= scaleY

		// Clip to the image bounds.
		x1 = clamp(x1, 0, w)
		y1 = clamp(y1, 0, h)
		boxW = min32(boxW, w-x1)
		boxH = min32(boxH, h-y1)

		if boxW <= 0 || boxH <= 0 {
			continue
		}

		detections = append(detections, Detection{
			Box:        Rect{X: x1, Y: y1, Width: boxW, Height: boxH},
			Confidence: maxConf,
			ClassID:    maxClass,
		})
	}

	if len(detections) == 0 {
		return nil
	}

	// Stable sort keeps anchor order for equal confidences.
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	return nms(detections, p.iouThreshold)
}

// nms walks the confidence-ordered list, emitting each unsuppressed
// detection and suppressing every later same-class detection whose IoU
// with it exceeds the threshold. Different classes never suppress each
// other.
func nms(sorted []Detection, iouThreshold float32) []Detection {
	kept := make([]Detection, 0, len(sorted))
	suppressed := make([]bool, len(sorted))

	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])

		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[i].ClassID != sorted[j].ClassID {
				continue
			}
			if IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

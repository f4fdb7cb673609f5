// Package classnames maps COCO class ids to human-readable labels and
// parses operator-supplied class allow-lists.
package classnames

import (
	"fmt"
	"strconv"
	"strings"
)

// coco80 is the standard 80-class COCO label set, indexed by class id.
var coco80 = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard",
	"surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork",
	"knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv",
	"laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
}

// Count returns the number of known classes.
func Count() int { return len(coco80) }

// Name returns the label for a class id, or "class <id>" when the id is
// outside the known set. Detectors trained on custom label sets produce
// ids past 79, so an unknown id is not an error.
func Name(id int) string {
	if id >= 0 && id < len(coco80) {
		return coco80[id]
	}
	return fmt.Sprintf("class %d", id)
}

// ID returns the class id for a label, matching case-insensitively.
func ID(name string) (int, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for id, label := range coco80 {
		if label == needle {
			return id, true
		}
	}
	return 0, false
}

// ParseAllowList turns a comma-separated list of class names or numeric
// ids into a deduplicated id list. An empty input yields nil, which
// downstream consumers treat as "allow everything".
func ParseAllowList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	var ids []int
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		id, err := strconv.Atoi(tok)
		if err != nil {
			var ok bool
			id, ok = ID(tok)
			if !ok {
				return nil, fmt.Errorf("unknown class %q", tok)
			}
		} else if id < 0 {
			return nil, fmt.Errorf("negative class id %d", id)
		}

		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

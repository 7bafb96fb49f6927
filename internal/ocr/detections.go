package ocr

// Point is a polygon vertex in pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Detections is the native engine output: index-aligned boxes, texts and scores.
type Detections struct {
	Boxes  [][]Point
	Texts  []string
	Scores []float64
}

// Len returns the number of complete (box, text, score) triples.
func (d *Detections) Len() int {
	if d == nil || d.Boxes == nil {
		return 0
	}
	n := len(d.Boxes)
	if len(d.Texts) < n {
		n = len(d.Texts)
	}
	if len(d.Scores) < n {
		n = len(d.Scores)
	}
	return n
}

// Append adds one detection.
func (d *Detections) Append(box []Point, text string, score float64) {
	d.Boxes = append(d.Boxes, box)
	d.Texts = append(d.Texts, text)
	d.Scores = append(d.Scores, score)
}

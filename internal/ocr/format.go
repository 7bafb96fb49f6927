package ocr

import "math"

// BBox is the axis-aligned bounding rectangle of a text line polygon.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TextLine is one recognized line of text.
type TextLine struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	BBox       BBox     `json:"bbox"`
	Polygon    [][2]int `json:"polygon"`
}

// ImageResult holds the text lines recognized in one submitted image.
type ImageResult struct {
	TextLines  []TextLine `json:"text_lines"`
	ImageIndex int        `json:"image_index"`
	TotalLines int        `json:"total_lines"`
}

// FormatDetections converts engine output into text line records. Engine order is kept;
// nothing is sorted, merged or filtered. TextLines is never nil.
func FormatDetections(d *Detections) []TextLine {
	n := d.Len()
	lines := make([]TextLine, 0, n)
	for i := 0; i < n; i++ {
		lines = append(lines, formatLine(d.Boxes[i], d.Texts[i], d.Scores[i]))
	}
	return lines
}

// NewImageResult formats detections for the image at index.
func NewImageResult(index int, d *Detections) ImageResult {
	lines := FormatDetections(d)
	return ImageResult{
		TextLines:  lines,
		ImageIndex: index,
		TotalLines: len(lines),
	}
}

func formatLine(box []Point, text string, score float64) TextLine {
	polygon := make([][2]int, 0, len(box))
	if len(box) == 0 {
		return TextLine{Text: text, Confidence: score, Polygon: polygon}
	}

	xMin, yMin := math.Inf(1), math.Inf(1)
	xMax, yMax := math.Inf(-1), math.Inf(-1)
	for _, p := range box {
		xMin = math.Min(xMin, p.X)
		xMax = math.Max(xMax, p.X)
		yMin = math.Min(yMin, p.Y)
		yMax = math.Max(yMax, p.Y)
		polygon = append(polygon, [2]int{int(p.X), int(p.Y)})
	}

	return TextLine{
		Text:       text,
		Confidence: score,
		BBox: BBox{
			X:      int(xMin),
			Y:      int(yMin),
			Width:  int(xMax - xMin),
			Height: int(yMax - yMin),
		},
		Polygon: polygon,
	}
}

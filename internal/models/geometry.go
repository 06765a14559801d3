package models

// TextRun is one positioned span of text on a page, in native page units.
// PDF coordinates have a bottom-left origin, so BaselineY grows upward.
// Runs are ephemeral: they exist only during one extraction pass.
type TextRun struct {
	Text      string
	BaselineX float64
	BaselineY float64
	Width     float64
	Height    float64
}

// Line is an ordered set of runs judged to share a baseline, sorted left to right.
type Line struct {
	Runs []TextRun
}

// BaselineY returns the baseline of the line's first run, or 0 for an empty line.
func (l *Line) BaselineY() float64 {
	if len(l.Runs) == 0 {
		return 0
	}
	return l.Runs[0].BaselineY
}

// Paragraph is a group of consecutive lines with no large vertical break.
// Rect is the union of the constituent run boxes in page-fraction units.
type Paragraph struct {
	Lines []Line
	Text  string
	Rect  Rect
}

// Rect is a rectangle in [0,1] page-fraction units with a top-left origin.
type Rect struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Viewport holds a page's native dimensions in PDF units.
type Viewport struct {
	Width  float64
	Height float64
}

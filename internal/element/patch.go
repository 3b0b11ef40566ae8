package element

// Patch is a partial update of an element. Nil fields are left untouched. A patch never
// carries id or type, so merging cannot change either.
type Patch struct {
	Points      *[]Point `json:"points,omitempty"`
	Color       *string  `json:"color,omitempty"`
	StrokeWidth *float64 `json:"strokeWidth,omitempty"`
	Text        *string  `json:"text,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	StickyColor *string  `json:"stickyColor,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p Patch) Empty() bool {
	return p == Patch{}
}

// Apply merges p into e and returns the result. e is not modified.
func (p Patch) Apply(e Element) Element {
	out := e.Clone()
	if p.Points != nil {
		out.Points = make([]Point, len(*p.Points))
		copy(out.Points, *p.Points)
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.StrokeWidth != nil {
		out.StrokeWidth = *p.StrokeWidth
	}
	if p.Text != nil {
		out.Text = clonePtr(p.Text)
	}
	if p.X != nil {
		out.X = clonePtr(p.X)
	}
	if p.Y != nil {
		out.Y = clonePtr(p.Y)
	}
	if p.Width != nil {
		out.Width = clonePtr(p.Width)
	}
	if p.Height != nil {
		out.Height = clonePtr(p.Height)
	}
	if p.StickyColor != nil {
		out.StickyColor = clonePtr(p.StickyColor)
	}
	return out
}

// PointsPatch is shorthand for a patch replacing only the points of an element.
func PointsPatch(points []Point) Patch {
	cp := make([]Point, len(points))
	copy(cp, points)
	return Patch{Points: &cp}
}

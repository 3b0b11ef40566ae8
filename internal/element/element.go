// Package element defines the shared canvas element schema and its mutation primitives.
package element

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Type is the drawable variant of an element.
type Type string

// Element types persisted on a canvas
const (
	TypePen       Type = "pen"
	TypeLine      Type = "line"
	TypeRectangle Type = "rectangle"
	TypeCircle    Type = "circle"
	TypeEraser    Type = "eraser"
	TypeText      Type = "text"
	TypeSticky    Type = "sticky"
)

var (
	ErrMissingID   = errors.New("element id is required")
	ErrInvalidType = errors.New("invalid element type")
)

// Valid reports whether t belongs to the closed set of persisted element types.
// Tool-only values such as "select" are not valid.
func (t Type) Valid() bool {
	switch t {
	case TypePen, TypeLine, TypeRectangle, TypeCircle, TypeEraser, TypeText, TypeSticky:
		return true
	}
	return false
}

// Freehand reports whether the points of t are stroke samples rather than two corners.
func (t Type) Freehand() bool {
	return t == TypePen || t == TypeEraser
}

// Point is a 2D canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Element is one drawable unit on the canvas. Optional fields are nil when unset.
type Element struct {
	ID          string   `json:"id"`
	Type        Type     `json:"type"`
	Points      []Point  `json:"points"`
	Color       string   `json:"color"`
	StrokeWidth float64  `json:"strokeWidth"`
	Text        *string  `json:"text,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	StickyColor *string  `json:"stickyColor,omitempty"`
}

// NewID returns a fresh globally unique element id.
func NewID() string {
	return uuid.NewString()
}

// Validate checks the fields the registry relies on.
func (e Element) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, e.Type)
	}
	return nil
}

// normalized fills the required collections so every replica encodes e identically.
func (e Element) normalized() Element {
	if e.Points == nil {
		e.Points = []Point{}
	}
	return e
}

// Clone returns a deep copy of e.
func (e Element) Clone() Element {
	c := e
	if e.Points != nil {
		c.Points = make([]Point, len(e.Points))
		copy(c.Points, e.Points)
	}
	c.Text = clonePtr(e.Text)
	c.X = clonePtr(e.X)
	c.Y = clonePtr(e.Y)
	c.Width = clonePtr(e.Width)
	c.Height = clonePtr(e.Height)
	c.StickyColor = clonePtr(e.StickyColor)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v, for filling optional fields.
func Ptr[T any](v T) *T {
	return &v
}

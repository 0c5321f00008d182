package driverk

// ElementHandle is a session scoped reference to a remote DOM node. Two handles
// are the same element iff their reference ids match. Handles are never released
// by us, the remote end drops them when the node goes away.
type ElementHandle struct {
	ID string
}

// Equal compares remote reference ids
func (h ElementHandle) Equal(other ElementHandle) bool {
	return h.ID == other.ID
}

// IsZero is true for the empty handle
func (h ElementHandle) IsZero() bool {
	return h.ID == ""
}

func (h ElementHandle) String() string {
	return "element(" + h.ID + ")"
}

// Rect of an element in viewport css pixels
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Center point of the rect
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Empty is true if the rect has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

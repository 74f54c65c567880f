// api/schemas/geometry.go
package schemas

import (
	"fmt"
	"image"
	"math"
)

// -- Geometry Schemas --

// Point is a position on a page, in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

func (p Point) String() string { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }

// Rectangle is an axis aligned box spanning Min (top left) to Max (bottom right).
type Rectangle struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// Rect builds a Rectangle from a top left corner and a size.
func Rect(x, y, width, height float64) Rectangle {
	return Rectangle{Min: Point{X: x, Y: y}, Max: Point{X: x + width, Y: y + height}}
}

func (r Rectangle) X() float64      { return r.Min.X }
func (r Rectangle) Y() float64      { return r.Min.Y }
func (r Rectangle) Width() float64  { return r.Max.X - r.Min.X }
func (r Rectangle) Height() float64 { return r.Max.Y - r.Min.Y }
func (r Rectangle) Area() float64   { return r.Width() * r.Height() }

// Size returns the (width, height) pair as a Point.
func (r Rectangle) Size() Point { return Point{X: r.Width(), Y: r.Height()} }

// Contains reports whether o lies completely inside r. Edges are inclusive.
func (r Rectangle) Contains(o Rectangle) bool {
	return o.Min.X >= r.Min.X && o.Min.Y >= r.Min.Y && o.Max.X <= r.Max.X && o.Max.Y <= r.Max.Y
}

// ContainsPoint reports whether p lies inside r. Edges are inclusive.
func (r Rectangle) ContainsPoint(p Point) bool {
	return p.X >= r.Min.X && p.Y >= r.Min.Y && p.X <= r.Max.X && p.Y <= r.Max.Y
}

// Sub translates r by -p. Used to convert page coordinates into viewport coordinates.
func (r Rectangle) Sub(p Point) Rectangle {
	return Rectangle{Min: r.Min.Sub(p), Max: r.Max.Sub(p)}
}

// Add translates r by p.
func (r Rectangle) Add(p Point) Rectangle {
	return Rectangle{Min: r.Min.Add(p), Max: r.Max.Add(p)}
}

// Image converts r to integer pixel bounds, rounding outwards.
func (r Rectangle) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Min.X)), int(math.Floor(r.Min.Y)),
		int(math.Ceil(r.Max.X)), int(math.Ceil(r.Max.Y)),
	)
}

func (r Rectangle) String() string {
	return fmt.Sprintf("Rectangle(%g, %g, %gx%g)", r.X(), r.Y(), r.Width(), r.Height())
}

// internal/snapshot/screenshot.go
package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/xkilldash9x/webtraversal/api/schemas"
)

// Screenshot is a named page image that can be annotated.
type Screenshot struct {
	Name  string
	Image *image.NRGBA
}

// NewScreenshot copies img into a new named screenshot.
func NewScreenshot(name string, img image.Image) *Screenshot {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		// Copy rows directly; going through draw would premultiply translucent pixels.
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	} else {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}
	return &Screenshot{Name: name, Image: dst}
}

// DecodeScreenshot decodes PNG bytes as returned by a Driver.
func DecodeScreenshot(name string, data []byte) (*Screenshot, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot %q: %w", name, err)
	}
	return NewScreenshot(name, img), nil
}

// LoadScreenshot reads a PNG file.
func LoadScreenshot(name, path string) (*Screenshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot %q: %w", name, err)
	}
	return DecodeScreenshot(name, data)
}

// Save writes the screenshot to dir/<name>.png.
func (s *Screenshot) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, s.Name+".png"))
	if err != nil {
		return fmt.Errorf("failed to create screenshot file: %w", err)
	}
	if err := png.Encode(f, s.Image); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode screenshot %q: %w", s.Name, err)
	}
	return f.Close()
}

// Copy returns a deep copy under a new name.
func (s *Screenshot) Copy(name string) *Screenshot {
	return NewScreenshot(name, s.Image)
}

func (s *Screenshot) Width() int  { return s.Image.Bounds().Dx() }
func (s *Screenshot) Height() int { return s.Image.Bounds().Dy() }

// Size returns (width, height) as a Point.
func (s *Screenshot) Size() schemas.Point {
	return schemas.Point{X: float64(s.Width()), Y: float64(s.Height())}
}

// Crop returns the part of the image inside r, which must be non-degenerate and within the image.
func (s *Screenshot) Crop(r schemas.Rectangle) (image.Image, error) {
	if r.Area() == 0 {
		return nil, fmt.Errorf("rectangle %s is degenerate", r)
	}
	if !schemas.Rect(0, 0, float64(s.Width()), float64(s.Height())).Contains(r) {
		return nil, fmt.Errorf("bounds %s outside of image area %dx%d", r, s.Width(), s.Height())
	}
	return s.Image.SubImage(r.Image()), nil
}

// Highlight draws a one pixel outline around r, with an optional text label below it.
func (s *Screenshot) Highlight(r schemas.Rectangle, c schemas.Color, text string) {
	box := r.Image()
	src := image.NewUniform(c.NRGBA())
	edges := []image.Rectangle{
		image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+1),
		image.Rect(box.Min.X, box.Max.Y-1, box.Max.X, box.Max.Y),
		image.Rect(box.Min.X, box.Min.Y, box.Min.X+1, box.Max.Y),
		image.Rect(box.Max.X-1, box.Min.Y, box.Max.X, box.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(s.Image, edge.Intersect(s.Image.Bounds()), src, image.Point{}, draw.Over)
	}
	if text != "" {
		s.Annotate(schemas.Point{X: r.X() + 1, Y: r.Y() + r.Height() + 1}, c, text)
	}
}

// Annotate writes text with its top left corner at p, shifted so it stays inside the image.
func (s *Screenshot) Annotate(p schemas.Point, c schemas.Color, text string) {
	const padding = 2
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: s.Image, Src: image.NewUniform(c.WithAlpha(255).NRGBA()), Face: face}

	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()
	x := min(int(p.X), s.Width()-width-padding)
	y := min(int(p.Y), s.Height()-height-padding)
	d.Dot = fixed.P(max(x, 0), max(y, 0)+face.Metrics().Ascent.Ceil())
	d.DrawString(text)
}

// Equal reports whether both screenshots have identical pixels.
func (s *Screenshot) Equal(o *Screenshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Image.Bounds().Size() == o.Image.Bounds().Size() && bytes.Equal(s.Image.Pix, o.Image.Pix)
}

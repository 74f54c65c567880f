// internal/snapshot/screenshot_test.go
package snapshot_test

import (
	"bytes"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webtraversal/api/schemas"
	"github.com/xkilldash9x/webtraversal/internal/snapshot"
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

func TestScreenshot_Highlight(t *testing.T) {
	s := snapshot.NewScreenshot("first", testImage(40, 40, white))
	red := schemas.RGB(255, 0, 0)

	s.Highlight(schemas.Rect(5, 5, 10, 10), red, "")

	assert.Equal(t, red.NRGBA(), s.Image.NRGBAAt(5, 5), "corner")
	assert.Equal(t, red.NRGBA(), s.Image.NRGBAAt(14, 10), "right edge")
	assert.Equal(t, white, s.Image.NRGBAAt(10, 10), "interior untouched")
	assert.Equal(t, white, s.Image.NRGBAAt(20, 20), "outside untouched")
}

func TestScreenshot_Annotate(t *testing.T) {
	s := snapshot.NewScreenshot("first", testImage(60, 30, white))
	before := s.Copy("before")

	// Far outside the image; the label is pulled back inside.
	s.Annotate(schemas.Point{X: 500, Y: 500}, schemas.RGB(0, 0, 255), "0.9")
	assert.False(t, s.Equal(before))
}

func TestScreenshot_Crop(t *testing.T) {
	s := snapshot.NewScreenshot("first", testImage(20, 10, white))

	img, err := s.Crop(schemas.Rect(2, 2, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	_, err = s.Crop(schemas.Rect(15, 0, 10, 5))
	assert.Error(t, err, "outside image")
	_, err = s.Crop(schemas.Rect(1, 1, 0, 5))
	assert.Error(t, err, "degenerate")
}

func TestScreenshot_SaveDecode(t *testing.T) {
	s := snapshot.NewScreenshot("shot", testImage(3, 2, color.NRGBA{R: 1, G: 2, B: 3, A: 128}))
	dir := t.TempDir()
	require.NoError(t, s.Save(dir))

	loaded, err := snapshot.LoadScreenshot("shot", filepath.Join(dir, "shot.png"))
	require.NoError(t, err)
	assert.True(t, s.Equal(loaded))
	assert.Equal(t, schemas.Point{X: 3, Y: 2}, loaded.Size())

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, s.Image))
	decoded, err := snapshot.DecodeScreenshot("again", buf.Bytes())
	require.NoError(t, err)
	assert.True(t, s.Equal(decoded))

	_, err = snapshot.DecodeScreenshot("bad", []byte("not a png"))
	assert.Error(t, err)
}

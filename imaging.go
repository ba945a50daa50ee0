package logincapture

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Imaging draws overlays and placeholder cards.
type Imaging interface {
	Annotate(img []byte, text string) ([]byte, error)
	RenderPlaceholder(lines []string) ([]byte, error)
}

const (
	placeholderWidth  = 800
	placeholderHeight = 600
	titlePoints       = 36
	bodyPoints        = 24
	linePadding       = 16
	placeholderMargin = 20
	overlayRatio      = 0.10
	overlayPad        = 30
	overlayInset      = 15
	minFacePoints     = 6
)

var (
	overlayBackdrop = color.NRGBA{R: 0, G: 0, B: 0, A: 200}

	fontsOnce   sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regularFont, fontsErr = opentype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		boldFont, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

// Canvas renders with the Go fonts bundled in golang.org/x/image.
type Canvas struct{}

// NewCanvas returns the default Imaging implementation.
func NewCanvas() *Canvas { return &Canvas{} }

// face returns a face of the given size. Sizes too small for the outline
// font, or a font that failed to parse, fall back to the fixed bitmap face.
func face(f *opentype.Font, points float64) font.Face {
	if points < minFacePoints || loadFonts() != nil || f == nil {
		return basicfont.Face7x13
	}
	ff, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    points,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return ff
}

// fitFace returns a face for line at the given size, shrunk until the line
// fits between the placeholder margins.
func fitFace(f *opentype.Font, points float64, line string) font.Face {
	const maxW = placeholderWidth - 2*placeholderMargin
	ff := face(f, points)
	for points >= minFacePoints {
		w := font.MeasureString(ff, line).Ceil()
		if w <= maxW {
			break
		}
		next := math.Floor(points * maxW / float64(w))
		if next >= points {
			next = points - 1
		}
		_ = ff.Close()
		points = next
		ff = face(f, points)
	}
	return ff
}

// Annotate overlays text in the top-right corner on a translucent box whose
// font is sized relative to the image height.
func (c *Canvas) Annotate(img []byte, text string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	_ = loadFonts()
	w, h := b.Dx(), b.Dy()
	ff := face(regularFont, float64(h)*overlayRatio)
	defer ff.Close()

	m := ff.Metrics()
	textW := font.MeasureString(ff, text).Ceil()
	textH := (m.Ascent + m.Descent).Ceil()

	box := image.Rect(w-textW-overlayPad, 0, w, textH+overlayPad)
	draw.Draw(dst, box, image.NewUniform(overlayBackdrop), image.Point{}, draw.Over)

	d := font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: ff,
		Dot:  fixed.P(w-textW-overlayInset, overlayInset+m.Ascent.Ceil()),
	}
	d.DrawString(text)

	return encodePNG(dst)
}

// RenderPlaceholder draws lines centered on a fixed black card; the first
// line is the title.
func (c *Canvas) RenderPlaceholder(lines []string) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	_ = loadFonts()
	faces := make([]font.Face, len(lines))
	total := 0
	for i, line := range lines {
		if i == 0 {
			faces[i] = fitFace(boldFont, titlePoints, line)
		} else {
			faces[i] = fitFace(regularFont, bodyPoints, line)
		}
		total += faces[i].Metrics().Height.Ceil() + linePadding
	}
	defer func() {
		for _, f := range faces {
			_ = f.Close()
		}
	}()

	y := (placeholderHeight - total) / 2
	for i, line := range lines {
		m := faces[i].Metrics()
		lineW := font.MeasureString(faces[i], line).Ceil()
		d := font.Drawer{
			Dst:  dst,
			Src:  image.White,
			Face: faces[i],
			Dot:  fixed.P(max((placeholderWidth-lineW)/2, 0), y+m.Ascent.Ceil()),
		}
		d.DrawString(line)
		y += m.Height.Ceil() + linePadding
	}

	return encodePNG(dst)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/starford/scenesync/internal/models"
)

// Options bound a rendered preview.
type Options struct {
	MaxDimension int
	Padding      int
	Background   bool
	Dark         bool
}

// Renderer rasterizes scene content into PNG bytes.
type Renderer interface {
	Render(ctx context.Context, content models.Content, opts Options) ([]byte, error)
}

// frame is the scene-to-image transform for one render.
type frame struct {
	minX, minY float64
	scale      float64
	pad        float64
	w, h       int
}

func layout(elements []models.Element, opts Options) frame {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, el := range elements {
		x0, x1 := span(el.X, el.Width)
		y0, y1 := span(el.Y, el.Height)
		minX, maxX = math.Min(minX, x0), math.Max(maxX, x1)
		minY, maxY = math.Min(minY, y0), math.Max(maxY, y1)
	}

	pad := float64(opts.Padding)
	w := maxX - minX + 2*pad
	h := maxY - minY + 2*pad
	scale := 1.0
	if limit := float64(opts.MaxDimension); limit > 0 && math.Max(w, h) > limit {
		scale = limit / math.Max(w, h)
	}
	return frame{
		minX:  minX,
		minY:  minY,
		scale: scale,
		pad:   pad,
		w:     max(1, int(math.Ceil(w*scale))),
		h:     max(1, int(math.Ceil(h*scale))),
	}
}

// span normalizes a position and a possibly negative extent.
func span(pos, size float64) (float64, float64) {
	if size < 0 {
		return pos + size, pos
	}
	return pos, pos + size
}

func (f frame) rect(el models.Element) image.Rectangle {
	x0, x1 := span(el.X, el.Width)
	y0, y1 := span(el.Y, el.Height)
	px := func(v, origin float64) int { return int(math.Round((v - origin + f.pad) * f.scale)) }
	r := image.Rect(px(x0, f.minX), px(y0, f.minY), px(x1, f.minX), px(y1, f.minY))
	if r.Dx() == 0 {
		r.Max.X++
	}
	if r.Dy() == 0 {
		r.Max.Y++
	}
	return r
}

// RasterRenderer draws element bounding boxes directly into an image.
type RasterRenderer struct{}

// Render implements Renderer.
func (RasterRenderer) Render(ctx context.Context, content models.Content, opts Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	visible := content.Visible()
	f := layout(visible, opts)
	img := image.NewNRGBA(image.Rect(0, 0, f.w, f.h))

	if opts.Background {
		bg := parseColor(content.AppState.ViewBackgroundColor, color.NRGBA{0xff, 0xff, 0xff, 0xff})
		draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	for _, el := range visible {
		r := f.rect(el)
		if fill := parseColor(el.BackgroundColor, color.NRGBA{}); fill.A > 0 {
			draw.Draw(img, r, image.NewUniform(fill), image.Point{}, draw.Over)
		}
		stroke := parseColor(el.StrokeColor, color.NRGBA{0x1e, 0x1e, 0x1e, 0xff})
		outline(img, r, stroke)
	}

	if opts.Dark {
		invert(img)
	}
	return encodePNG(img)
}

func outline(img draw.Image, r image.Rectangle, c color.Color) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

func invert(img *image.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff - img.Pix[i]
		img.Pix[i+1] = 0xff - img.Pix[i+1]
		img.Pix[i+2] = 0xff - img.Pix[i+2]
	}
}

// Placeholder returns a 1x1 PNG filled with the scene background.
func Placeholder(content models.Content, opts Options) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	if opts.Background {
		c := parseColor(content.AppState.ViewBackgroundColor, color.NRGBA{0xff, 0xff, 0xff, 0xff})
		img.SetNRGBA(0, 0, c)
		if opts.Dark {
			invert(img)
		}
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("thumbnail: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// parseColor understands #rgb, #rrggbb and "transparent".
func parseColor(s string, fallback color.NRGBA) color.NRGBA {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "transparent" {
		return color.NRGBA{}
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return fallback
	}
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallback
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

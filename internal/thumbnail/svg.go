package thumbnail

import (
	"fmt"
	"html"
	"strings"

	"github.com/starford/scenesync/internal/models"
)

// SVG renders content as a standalone SVG document sized like a raster render.
func SVG(content models.Content, opts Options) (string, int, int) {
	visible := content.Visible()
	f := layout(visible, opts)

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d"`, f.w, f.h, f.w, f.h)
	if opts.Dark {
		b.WriteString(` style="filter: invert(93%) hue-rotate(180deg)"`)
	}
	b.WriteString(">")

	if opts.Background {
		bg := content.AppState.ViewBackgroundColor
		if bg == "" {
			bg = "#ffffff"
		}
		fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="%s"/>`, html.EscapeString(bg))
	}

	for _, el := range visible {
		r := f.rect(el)
		stroke := el.StrokeColor
		if stroke == "" {
			stroke = "#1e1e1e"
		}
		fill := el.BackgroundColor
		if fill == "" {
			fill = "transparent"
		}
		switch el.Type {
		case "ellipse":
			fmt.Fprintf(&b, `<ellipse cx="%d" cy="%d" rx="%d" ry="%d" fill="%s" stroke="%s"/>`,
				(r.Min.X+r.Max.X)/2, (r.Min.Y+r.Max.Y)/2, r.Dx()/2, r.Dy()/2,
				html.EscapeString(fill), html.EscapeString(stroke))
		case "text":
			fmt.Fprintf(&b, `<text x="%d" y="%d" font-size="%d" fill="%s">%s</text>`,
				r.Min.X, r.Max.Y, max(1, r.Dy()), html.EscapeString(stroke), html.EscapeString(el.Text))
		default:
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="%d" height="%d" fill="%s" stroke="%s"/>`,
				r.Min.X, r.Min.Y, r.Dx(), r.Dy(), html.EscapeString(fill), html.EscapeString(stroke))
		}
	}
	b.WriteString("</svg>")
	return b.String(), f.w, f.h
}

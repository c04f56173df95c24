package render

import (
	"image/color"

	uv "github.com/charmbracelet/ultraviolet"
)

// Draw implements uv.Drawable. Each terminal row shows two framebuffer
// rows: ▀ with the top pixel as foreground and the bottom as background.
func (fb *Framebuffer) Draw(scr uv.Screen, area uv.Rectangle) {
	for row := area.Min.Y; row < area.Max.Y; row++ {
		topY := (row - area.Min.Y) * 2
		botY := topY + 1
		if topY >= fb.Height {
			break
		}

		for col := area.Min.X; col < area.Max.X; col++ {
			x := col - area.Min.X
			if x >= fb.Width {
				break
			}
			scr.SetCell(col, row, &uv.Cell{
				Content: "▀",
				Width:   1,
				Style: uv.Style{
					Fg: rgbaToColor(fb.GetPixel(x, topY)),
					Bg: rgbaToColor(fb.GetPixel(x, botY)),
				},
			})
		}
	}
}

// rgbaToColor maps fully transparent pixels to the terminal default.
func rgbaToColor(c color.RGBA) color.Color {
	if c.A == 0 {
		return nil
	}
	return c
}

// Color is an alias for color.RGBA for convenience.
type Color = color.RGBA

// Colors used by the viewer.
var (
	ColorBackground = color.RGBA{30, 30, 40, 255}
	ColorNeutral    = color.RGBA{221, 221, 221, 255}
	ColorError      = color.RGBA{220, 40, 40, 255}
)

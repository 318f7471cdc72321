// Package ogimage renders share cards as PNG images sized for link
// preview embeds (1200x630).
package ogimage

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"lovebomb-backend/internal/models"
)

const (
	cardWidth  = 1200
	cardHeight = 630
	marginX    = 80
	lineGap    = 26
)

var (
	background = color.NRGBA{R: 16, G: 18, B: 28, A: 255}
	panel      = color.NRGBA{R: 28, G: 31, B: 46, A: 255}
	ink        = color.NRGBA{R: 235, G: 237, B: 245, A: 255}
	muted      = color.NRGBA{R: 148, G: 155, B: 178, A: 255}
	accent     = color.NRGBA{R: 255, G: 99, B: 132, A: 255}
	barTrack   = color.NRGBA{R: 52, G: 57, B: 80, A: 255}
)

// Render draws a share card for the payload and writes it as PNG.
func Render(w io.Writer, p models.SharePayload) error {
	img := imaging.New(cardWidth, cardHeight, background)

	// Content panel with a slim accent bar on the left edge.
	fillRect(img, image.Rect(40, 40, cardWidth-40, cardHeight-40), panel)
	fillRect(img, image.Rect(40, 40, 48, cardHeight-40), accent)

	y := 120
	drawText(img, marginX, y, "lovebomb.works", muted)
	y += 2 * lineGap

	for _, line := range wrap(p.Name, 52) {
		drawText(img, marginX, y, strings.ToUpper(line), ink)
		y += lineGap
	}
	y += lineGap / 2

	drawText(img, marginX, y, fmt.Sprintf("Confidence: %d%%", p.Confidence), muted)
	y += lineGap
	drawBar(img, marginX, y, 420, p.Confidence, accent)
	y += 2 * lineGap

	for _, line := range wrap(p.Description, 72) {
		drawText(img, marginX, y, line, ink)
		y += lineGap
	}
	y += lineGap

	outcome := fmt.Sprintf("%s — %d%% (%s)", p.Prediction.Outcome, p.Prediction.Probability, p.Prediction.Level)
	for _, line := range wrap(outcome, 72) {
		drawText(img, marginX, y, line, accent)
		y += lineGap
	}

	return imaging.Encode(w, img, imaging.PNG)
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func drawBar(img *image.NRGBA, x, y, width, percent int, c color.NRGBA) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	fillRect(img, image.Rect(x, y, x+width, y+10), barTrack)
	fillRect(img, image.Rect(x, y, x+width*percent/100, y+10), c)
}

func drawText(img *image.NRGBA, x, y int, s string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// wrap breaks s into lines of at most width characters on word boundaries.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}

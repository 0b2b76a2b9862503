// Package render formats Hadley cell results for the terminal.
package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/hadley-cell/internal/domain"
)

// PsiUnit scales the stream function for display.
const PsiUnit = 1e9

// Line is the plain one-line boundary report.
func Line(north, south float64) string {
	return fmt.Sprintf("North: %6.2f, South: %6.2f", north, south)
}

// Summary renders the boundaries and critical points in a box.
func Summary(source string, b domain.Boundaries) string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("Hadley cell"))
	if source != "" {
		content.WriteString(" ")
		content.WriteString(mutedStyle.Render(source))
	}
	content.WriteString("\n\n")

	writeRow(&content, "North edge", latitude(b.North))
	writeRow(&content, "South edge", latitude(b.South))
	content.WriteString("\n")
	writeRow(&content, "North max", critical(b.NorthStar))
	writeRow(&content, "South min", critical(b.SouthStar))

	if len(b.Crossings) > 0 {
		parts := make([]string, len(b.Crossings))
		for i, c := range b.Crossings {
			parts[i] = fmt.Sprintf("%.2f", c)
		}
		content.WriteString("\n")
		writeRow(&content, "Crossings", strings.Join(parts, " "))
	}
	return boxStyle.Render(strings.TrimRight(content.String(), "\n"))
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-11s", label+":")))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}

func latitude(lat float64) string {
	if !domain.Found(lat) {
		return mutedStyle.Render("not found")
	}
	return valueStyle.Render(fmt.Sprintf("%6.2f°", lat))
}

func critical(p domain.CriticalPoint) string {
	return valueStyle.Render(fmt.Sprintf("%6.2f° at %4.0f hPa, %7.2f × 10⁹ kg/s",
		p.Latitude, p.Pressure/100, p.Value/PsiUnit))
}

// Table renders the stream function in 10⁹ kg/s, one row per pressure layer
// with the upper atmosphere first.
func Table(sf domain.StreamFunction) string {
	const cell = 8
	var out strings.Builder

	out.WriteString(headerStyle.Render(fmt.Sprintf("%*s", cell, "hPa\\lat")))
	for _, lat := range sf.Latitude {
		out.WriteString(headerStyle.Render(fmt.Sprintf("%*.1f", cell, lat)))
	}
	out.WriteString("\n")

	for i, p := range sf.Pressure {
		out.WriteString(headerStyle.Render(fmt.Sprintf("%*.0f", cell, p/100)))
		for j := range sf.Latitude {
			out.WriteString(psiCell(sf.Psi.Get(i, j), cell))
		}
		out.WriteString("\n")
	}
	return strings.TrimRight(out.String(), "\n")
}

func psiCell(psi float64, width int) string {
	if math.IsNaN(psi) {
		return mutedStyle.Render(fmt.Sprintf("%*s", width, "nan"))
	}
	text := fmt.Sprintf("%*.2f", width, psi/PsiUnit)
	switch {
	case psi > 0:
		return positiveStyle.Render(text)
	case psi < 0:
		return negativeStyle.Render(text)
	default:
		return valueStyle.Render(text)
	}
}

// Verdict renders a check outcome: PASS, or FAIL with the failure count.
func Verdict(failures int) string {
	if failures == 0 {
		return passStyle.Render("PASS")
	}
	return failStyle.Render(fmt.Sprintf("FAIL (%d errors)", failures))
}

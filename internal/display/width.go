package display

import "github.com/mattn/go-runewidth"

// Column width bounds, in display units.
const (
	MinColumnWidth = 80
	MaxColumnWidth = 300

	// unitsPerCell approximates the width of one terminal cell.
	unitsPerCell = 8

	// widthSampleSize is how many values OptimalColumnWidth looks at.
	widthSampleSize = 10
)

// OptimalColumnWidth estimates the width a column needs from its header and
// the first ten sample values. The widest of them, measured in terminal
// cells, is scaled by eight and clamped to [MinColumnWidth, MaxColumnWidth].
// East Asian wide characters count as two cells.
func OptimalColumnWidth(sample []string, header string) int {
	widest := runewidth.StringWidth(header)

	n := min(len(sample), widthSampleSize)
	for _, v := range sample[:n] {
		widest = max(widest, runewidth.StringWidth(v))
	}

	return min(max(widest*unitsPerCell, MinColumnWidth), MaxColumnWidth)
}

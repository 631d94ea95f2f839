package display

import "unicode/utf8"

const (
	// typeSampleSize is how many leading values decide whether a column is numeric.
	typeSampleSize = 5

	// LongContentThreshold is the length in runes above which a value counts
	// as long content.
	LongContentThreshold = 50
)

// Classification holds the type hints derived from a column sample.
type Classification struct {
	IsNumeric      bool `json:"isNumeric"`
	HasLongContent bool `json:"hasLongContent"`
}

// ClassifyColumn inspects sample values of one column.
//
// A column is numeric when more than half of its first five values are
// numeric; an empty sample is never numeric. It has long content when any
// value is longer than LongContentThreshold runes, so pass the full column
// (or use ColumnScanner) when that flag matters.
func ClassifyColumn(sample []string) Classification {
	n := min(len(sample), typeSampleSize)
	numeric := 0
	for _, v := range sample[:n] {
		if IsNumeric(v) {
			numeric++
		}
	}

	long := false
	for _, v := range sample {
		if isLongContent(v) {
			long = true
			break
		}
	}

	return Classification{
		IsNumeric:      n > 0 && numeric*2 > n,
		HasLongContent: long,
	}
}

func isLongContent(v string) bool {
	return utf8.RuneCountInString(v) > LongContentThreshold
}

// IsNumeric reports whether value looks like a plain decimal number: an
// optional sign, digits with at most one '.', and ',' thousands separators
// once a digit has appeared. At least one digit is required. Exponents are
// not recognised.
func IsNumeric(value string) bool {
	if value == "" {
		return false
	}

	s := value
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}

	hasDigit, hasDot := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c == '.' && !hasDot:
			hasDot = true
		case c == ',' && hasDigit:
		default:
			return false
		}
	}
	return hasDigit
}

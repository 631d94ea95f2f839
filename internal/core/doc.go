// Package core provides random-access reading of CSV files for display.
//
// This package is the access layer of the viewer. It has no UI or transport
// dependencies and can be used by the HTTP boundary, CLI tools, or tests
// without modification.
//
// # Table Handles
//
// A [Table] wraps exactly one memory-mapped file. The header row is parsed
// eagerly and the data rows are counted once on [Table.Open]; individual rows
// are re-read from the mapping on demand:
//
//	t := core.NewTable()
//	if err := t.Open("orders.csv"); err != nil {
//	    // errors.Is(err, core.ErrMap), core.ErrHeader or core.ErrParse
//	}
//	defer t.Close()
//
//	headers := t.Headers()
//	row := t.Row(42)       // empty slice when out of range
//	cell := t.Cell(42, 3)  // empty string when out of range
//
// A handle holds a single active file. Every call to Open tears down the
// previous state first, and a failed Open leaves the handle empty.
//
// # Row Access Cost
//
// Without options, each [Table.Row] call rescans the mapping from the first
// data row, so the cost is O(index). [WithRowIndex] enables a row-offset
// index built lazily on the first row access, after which rows are read with
// a single seek. Results are identical either way.
//
// # Sessions
//
// [Service] owns the handles exposed to the HTTP boundary. Each session is
// keyed by a UUID, opens are bounded by an [OpenLimiter], and idle sessions
// are closed by a background sweeper.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE003: File errors (unreadable, header, parse)
//   - ROW001-ROW002: Row access errors (out of range, not loaded)
//   - SES001-SES003: Session errors (not found, limit, path)
//   - REQ001-REQ004: Request errors (cancelled, timeout, busy, invalid)
package core

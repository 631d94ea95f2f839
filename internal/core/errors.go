package core

import (
	"errors"
	"fmt"
)

// Error kinds reported by the table store.
// Match them with errors.Is; Open wraps them in an *OpenError.
var (
	// ErrMap is returned when a file cannot be opened or memory-mapped
	// (missing, unreadable, permission denied, a directory).
	ErrMap = errors.New("cannot map file")

	// ErrHeader is returned when a file has no valid header row.
	ErrHeader = errors.New("no valid header row")

	// ErrParse is returned by RowErr for a row with malformed quoting, and
	// by row scans that hit a read fault. Open counts malformed rows rather
	// than failing on them, so it reports ErrParse only when the mapped data
	// cannot be read to the end; an mmap reader returns no errors besides
	// EOF, which leaves that path effectively unreachable.
	ErrParse = errors.New("malformed csv")

	// ErrOutOfRange is returned by RowErr when an index exceeds the current
	// bounds. Row and Cell never return it; they answer with an empty result.
	ErrOutOfRange = errors.New("index out of range")

	// ErrNotLoaded is returned by RowErr when the handle has no open file.
	ErrNotLoaded = errors.New("no file loaded")

	// ErrInvalidRequest marks malformed input at the HTTP boundary, such as
	// an unparsable body or a non-numeric index.
	ErrInvalidRequest = errors.New("invalid request")
)

// OpenError describes a failed Table.Open.
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open table %q: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

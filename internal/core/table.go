package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/mmap"
)

// Option configures a Table.
type Option func(*Table)

// WithRowIndex enables the lazily built row-offset index.
func WithRowIndex() Option {
	return func(t *Table) {
		t.useIndex = true
	}
}

// WithLogger sets the logger used for open/close events (default: slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Table is a handle over one memory-mapped CSV file.
//
// Open and Close take an exclusive lock; every query takes a shared lock, so
// a loaded handle can serve many readers at once. The zero value is not
// usable; create handles with NewTable or OpenTable.
type Table struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	useIndex bool

	path    string
	data    *mmap.ReaderAt
	start   int64 // first byte after an optional BOM
	headers []string
	rows    int
	loaded  bool
	index   *rowIndex
}

// Info is a snapshot of a handle's state.
type Info struct {
	Path        string `json:"path,omitempty"`
	Loaded      bool   `json:"loaded"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	SizeBytes   int64  `json:"sizeBytes"`
	Summary     string `json:"summary"`
}

// NewTable creates an empty handle.
func NewTable(opts ...Option) *Table {
	t := &Table{logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OpenTable creates a handle and opens path with it.
// On failure the returned handle is empty and can be reused for another Open.
func OpenTable(path string, opts ...Option) (*Table, error) {
	t := NewTable(opts...)
	if err := t.Open(path); err != nil {
		return t, err
	}
	return t, nil
}

// Open memory-maps path, parses its header row and counts its data rows.
//
// Any previously loaded file is released first, whatever the outcome. On
// failure the handle is left empty and the returned *OpenError wraps ErrMap,
// ErrHeader or ErrParse.
func (t *Table) Open(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reset()

	if err := t.load(path); err != nil {
		t.reset()
		t.logger.Warn("table open failed", "path", path, "error", err)
		return &OpenError{Path: path, Err: err}
	}

	t.logger.Debug("table opened",
		"path", path,
		"rows", t.rows,
		"columns", len(t.headers),
		"size_bytes", t.data.Len(),
	)
	return nil
}

// load does the work of Open. The caller holds the write lock and resets the
// handle on error.
func (t *Table) load(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMap, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrMap, path)
	}

	data, err := mmap.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMap, err)
	}
	t.data = data
	t.path = path
	t.start = bomLength(data, int64(data.Len()))

	if int64(data.Len()) <= t.start {
		return fmt.Errorf("%w: empty file", ErrHeader)
	}

	r := t.reader(t.start)
	header, err := r.Read()
	if err == io.EOF {
		return fmt.Errorf("%w: empty file", ErrHeader)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHeader, err)
	}
	t.headers = trimCells(header)

	rows := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil && !isRecordError(err) {
			return fmt.Errorf("%w: counting rows: %v", ErrParse, err)
		}
		rows++
	}

	t.rows = rows
	t.loaded = true
	if t.useIndex {
		t.index = &rowIndex{}
	}
	return nil
}

// Close resets the handle to the empty state and releases the mapping.
// Closing an empty handle is a no-op.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasLoaded := t.loaded
	err := t.reset()
	if wasLoaded {
		t.logger.Debug("table closed", "path", t.path)
	}
	return err
}

// reset clears all loaded state. The caller holds the write lock.
func (t *Table) reset() error {
	var err error
	if t.data != nil {
		err = t.data.Close()
		t.data = nil
	}
	t.loaded = false
	t.headers = nil
	t.rows = 0
	t.start = 0
	t.index = nil
	return err
}

// Loaded reports whether the handle holds an open file.
func (t *Table) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Path returns the path of the open file, or "" when not loaded.
func (t *Table) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.loaded {
		return ""
	}
	return t.path
}

// Headers returns a copy of the header row. Empty when not loaded.
func (t *Table) Headers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, len(t.headers))
	copy(out, t.headers)
	return out
}

// RowCount returns the number of data rows (header excluded). 0 when not loaded.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows
}

// ColumnCount returns the number of header cells. 0 when not loaded.
func (t *Table) ColumnCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.headers)
}

// Info returns a snapshot of the handle's state.
func (t *Table) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded {
		return Info{Summary: "0 rows • 0 columns"}
	}
	return Info{
		Path:        t.path,
		Loaded:      true,
		RowCount:    t.rows,
		ColumnCount: len(t.headers),
		SizeBytes:   int64(t.data.Len()),
		Summary:     fmt.Sprintf("%d rows • %d columns", t.rows, len(t.headers)),
	}
}

// Row returns data row index (0-based, header excluded).
//
// It returns an empty slice when the handle is not loaded, the index is out
// of range, or the row cannot be parsed. Use RowErr to tell these apart.
func (t *Table) Row(index int) []string {
	row, err := t.RowErr(index)
	if err != nil {
		return []string{}
	}
	return row
}

// RowErr is Row with the failure reason: ErrNotLoaded, ErrOutOfRange or ErrParse.
func (t *Table) RowErr(index int) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded {
		return nil, ErrNotLoaded
	}
	if index < 0 || index >= t.rows {
		return nil, fmt.Errorf("%w: row %d of %d", ErrOutOfRange, index, t.rows)
	}

	var (
		row    []string
		rowErr error
	)
	err := t.scan(index, func(_ int, rec []string, recErr error) bool {
		if recErr != nil {
			rowErr = fmt.Errorf("%w: row %d: %v", ErrParse, index, recErr)
			return false
		}
		row = trimCells(rec)
		return false
	})
	if err == nil {
		err = rowErr
	}
	if err != nil {
		t.logger.Warn("row read failed", "path", t.path, "row", index, "error", err)
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: row %d vanished from mapping", ErrParse, index)
	}
	return row, nil
}

// Cell returns the value at (rowIndex, columnIndex), or "" when either index
// is out of bounds, the handle is not loaded, or the row is shorter than
// columnIndex+1.
func (t *Table) Cell(rowIndex, columnIndex int) string {
	if columnIndex < 0 || columnIndex >= t.ColumnCount() {
		return ""
	}
	row := t.Row(rowIndex)
	if columnIndex < len(row) {
		return row[columnIndex]
	}
	return ""
}

// Rows returns up to n rows starting at start, read in a single pass.
// The range is clipped to the row count. A malformed row appears as an empty
// slice, like Row; any other fault yields an empty result.
func (t *Table) Rows(start, n int) [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded || start < 0 || start >= t.rows || n <= 0 {
		return [][]string{}
	}
	if start+n > t.rows {
		n = t.rows - start
	}

	out := make([][]string, 0, n)
	err := t.scan(start, func(_ int, rec []string, recErr error) bool {
		if recErr != nil {
			out = append(out, []string{})
		} else {
			out = append(out, trimCells(rec))
		}
		return len(out) < n
	})
	if err != nil {
		t.logger.Warn("row page read failed", "path", t.path, "start", start, "error", err)
		return [][]string{}
	}
	return out
}

// Column returns the values of column col for the first limit rows
// (limit <= 0 means every row). Rows shorter than col+1 and malformed rows
// contribute "".
func (t *Table) Column(col, limit int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded || col < 0 || col >= len(t.headers) {
		return []string{}
	}
	if limit <= 0 || limit > t.rows {
		limit = t.rows
	}
	if limit == 0 {
		return []string{}
	}

	out := make([]string, 0, limit)
	err := t.scan(0, func(_ int, rec []string, recErr error) bool {
		v := ""
		if recErr == nil && col < len(rec) {
			v = strings.TrimSpace(rec[col])
		}
		out = append(out, v)
		return len(out) < limit
	})
	if err != nil {
		t.logger.Warn("column read failed", "path", t.path, "column", col, "error", err)
		return []string{}
	}
	return out
}

// EachRow calls fn for every data row in order, in a single pass, until fn
// returns false. Cells are trimmed; a malformed row is passed as an empty
// slice. row is only valid during the call. An unloaded handle makes no calls.
func (t *Table) EachRow(fn func(index int, row []string) bool) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.loaded || t.rows == 0 {
		return nil
	}

	row := make([]string, 0, len(t.headers))
	err := t.scan(0, func(i int, rec []string, recErr error) bool {
		row = row[:0]
		if recErr == nil {
			for _, v := range rec {
				row = append(row, strings.TrimSpace(v))
			}
		}
		return fn(i, row)
	})
	if err != nil {
		t.logger.Warn("row scan failed", "path", t.path, "error", err)
	}
	return err
}

// scan calls fn for each data row from row from onwards until fn returns
// false or the data ends. A malformed row is passed with a nil rec and its
// parse error; malformed rows before from are skipped like any other. rec is
// only valid during the call. The caller holds the read lock and has checked
// that from is in range.
func (t *Table) scan(from int, fn func(i int, rec []string, recErr error) bool) error {
	offsets, err := t.offsets()
	if err != nil {
		return err
	}

	var r *csv.Reader
	i := 0
	if offsets != nil {
		r = t.reader(offsets[from])
		i = from
	} else {
		r = t.reader(t.start)
		if _, err := r.Read(); err != nil {
			return fmt.Errorf("%w: header: %v", ErrParse, err)
		}
	}

	for ; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil && !isRecordError(err) {
			return fmt.Errorf("%w: %v", ErrParse, err)
		}
		if i < from {
			continue
		}
		if err != nil {
			rec = nil
		}
		if !fn(i, rec, err) {
			return nil
		}
	}
}

// reader returns a CSV reader over the mapping starting at byte offset off.
func (t *Table) reader(off int64) *csv.Reader {
	section := io.NewSectionReader(t.data, off, int64(t.data.Len())-off)
	r := csv.NewReader(NewUTF8Sanitizer(section))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.ReuseRecord = true
	return r
}

// trimCells returns a trimmed copy of rec.
func trimCells(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// isRecordError reports whether err is confined to one record, so reading can
// continue with the next.
func isRecordError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

// IsOpenError reports whether err came from a failed Open.
func IsOpenError(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}

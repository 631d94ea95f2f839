package core

import (
	"fmt"
	"io"
	"sync"
)

// rowIndex holds the byte offset at which each data row starts.
// It is built at most once per successful Open.
type rowIndex struct {
	once    sync.Once
	offsets []int64
	err     error
}

// offsets returns the row-offset index, building it on first use.
// It returns nil, nil when the index option is disabled.
func (t *Table) offsets() ([]int64, error) {
	idx := t.index
	if idx == nil {
		return nil, nil
	}
	idx.once.Do(func() {
		idx.offsets, idx.err = t.buildIndex()
		if idx.err == nil {
			t.logger.Debug("row index built", "path", t.path, "rows", len(idx.offsets))
		}
	})
	return idx.offsets, idx.err
}

// buildIndex makes one pass over the mapping and records where every data
// row begins, malformed ones included. Blank lines between rows are skipped
// by the reader, so an offset may point at the whitespace preceding its row.
func (t *Table) buildIndex() ([]int64, error) {
	r := t.reader(t.start)
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrParse, err)
	}

	offsets := make([]int64, 0, t.rows)
	for {
		off := t.start + r.InputOffset()
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil && !isRecordError(err) {
			return nil, fmt.Errorf("%w: indexing row %d: %v", ErrParse, len(offsets), err)
		}
		offsets = append(offsets, off)
	}

	if len(offsets) != t.rows {
		return nil, fmt.Errorf("%w: indexed %d rows, expected %d", ErrParse, len(offsets), t.rows)
	}
	return offsets, nil
}

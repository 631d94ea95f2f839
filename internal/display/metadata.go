package display

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ColumnMetadata describes how to render one column.
type ColumnMetadata struct {
	OriginalHeader string `json:"originalHeader"`
	DisplayHeader  string `json:"displayHeader"`
	OptimalWidth   int    `json:"optimalWidth"`
	Classification
}

// NewColumnMetadata derives the display metadata of a column from its header
// and sample data.
func NewColumnMetadata(header string, data []string) ColumnMetadata {
	return ColumnMetadata{
		OriginalHeader: header,
		DisplayHeader:  TruncateHeader(header, DefaultHeaderLength),
		OptimalWidth:   OptimalColumnWidth(data, header),
		Classification: ClassifyColumn(data),
	}
}

// DescribeColumns computes metadata for every header in parallel. columns[i]
// holds the full column for headers[i]; a missing column counts as empty. The
// result keeps header order. Only ctx cancellation makes it fail.
func DescribeColumns(ctx context.Context, headers []string, columns [][]string) ([]ColumnMetadata, error) {
	return describeAll(ctx, len(headers), func(i int) ColumnMetadata {
		var data []string
		if i < len(columns) {
			data = columns[i]
		}
		return NewColumnMetadata(headers[i], data)
	})
}

// describeAll runs describe for 0..n-1 on an errgroup and collects the results
// in order.
func describeAll(ctx context.Context, n int, describe func(i int) ColumnMetadata) ([]ColumnMetadata, error) {
	out := make([]ColumnMetadata, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = describe(i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sampleSize is how many leading values per column a ColumnScanner keeps.
const sampleSize = max(widthSampleSize, typeSampleSize)

// ColumnScanner collects column metadata inputs from rows fed one at a time.
// It keeps only the leading sample of each column, but long content is
// tracked over every row it sees, so a table can be described in one pass
// without holding its columns in memory.
type ColumnScanner struct {
	samples [][]string
	long    []bool
}

// NewColumnScanner creates a scanner for rows of width columns.
func NewColumnScanner(width int) *ColumnScanner {
	width = max(width, 0)
	return &ColumnScanner{
		samples: make([][]string, width),
		long:    make([]bool, width),
	}
}

// Add records one row. Short rows contribute "" to the missing columns and
// extra cells are ignored. row is not retained.
func (s *ColumnScanner) Add(row []string) {
	for c := range s.samples {
		v := ""
		if c < len(row) {
			v = row[c]
		}
		if len(s.samples[c]) < sampleSize {
			s.samples[c] = append(s.samples[c], v)
		}
		if !s.long[c] && isLongContent(v) {
			s.long[c] = true
		}
	}
}

// Describe builds the metadata of every column seen so far. headers[i] names
// column i; columns beyond the scanner's width describe as empty.
func (s *ColumnScanner) Describe(ctx context.Context, headers []string) ([]ColumnMetadata, error) {
	return describeAll(ctx, len(headers), func(i int) ColumnMetadata {
		if i >= len(s.samples) {
			return NewColumnMetadata(headers[i], nil)
		}
		meta := NewColumnMetadata(headers[i], s.samples[i])
		meta.HasLongContent = s.long[i]
		return meta
	})
}

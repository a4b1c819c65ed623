package database

import (
	"fmt"
	"strconv"
	"strings"
)

// maxRowsPerStatement keeps every dialect well below its bind parameter limit
const maxRowsPerStatement = 500

// placeholder returns the n-th (1-based) bind parameter of the dialect
func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// placeholders returns count parameters starting at offset+1, comma separated
func (d Dialect) placeholders(offset, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(offset + i + 1)
	}
	return strings.Join(parts, ", ")
}

// upsertStatement builds a multi-row insert that overwrites every non-key
// column of a conflicting row
func upsertStatement(d Dialect, t table, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.name, strings.Join(t.columns, ", "))

	width := len(t.columns)
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%s)", d.placeholders(r*width, width))
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET ", strings.Join(t.keys, ", "))
	first := true
	for _, col := range t.columns[len(t.keys):] {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s = excluded.%s", col, col)
	}
	return b.String()
}

// chunks splits n rows into [start, end) ranges of at most size rows
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

package sheet

import (
	"fmt"
	"strings"
)

type Diff struct {
	HeaderChanged bool `json:"header_changed"`
	Added         int  `json:"rows_added"`
	Removed       int  `json:"rows_removed"`
	Changed       int  `json:"rows_changed"`
}

// Compare summarises how next differs from prev. Rows present in both, in any
// position, count as unchanged. Leftover rows pair up as changed and the
// remainder are added or removed.
func Compare(prev, next *Sheet) Diff {
	var d Diff
	if prev == nil {
		prev = &Sheet{}
	}
	if next == nil {
		next = &Sheet{}
	}
	d.HeaderChanged = len(prev.Header) > 0 && rowKey(prev.Header) != rowKey(next.Header)

	remaining := make(map[string]int, len(prev.Rows))
	for _, r := range prev.Rows {
		remaining[rowKey(r)]++
	}
	unmatchedNew := 0
	for _, r := range next.Rows {
		k := rowKey(r)
		if remaining[k] > 0 {
			remaining[k]--
			continue
		}
		unmatchedNew++
	}
	unmatchedOld := 0
	for _, n := range remaining {
		unmatchedOld += n
	}

	d.Changed = min(unmatchedOld, unmatchedNew)
	d.Added = unmatchedNew - d.Changed
	d.Removed = unmatchedOld - d.Changed
	return d
}

// DiffCSV is Compare on raw CSV. Unparseable input counts as an empty sheet.
func DiffCSV(prev, next string) Diff {
	p, _ := Parse(prev)
	n, _ := Parse(next)
	return Compare(p, n)
}

func (d Diff) Empty() bool {
	return !d.HeaderChanged && d.Added == 0 && d.Removed == 0 && d.Changed == 0
}

func (d Diff) String() string {
	if d.Empty() {
		return "no changes"
	}
	var parts []string
	if d.HeaderChanged {
		parts = append(parts, "columns changed")
	}
	if d.Added > 0 {
		parts = append(parts, countRows(d.Added, "added"))
	}
	if d.Removed > 0 {
		parts = append(parts, countRows(d.Removed, "removed"))
	}
	if d.Changed > 0 {
		parts = append(parts, countRows(d.Changed, "changed"))
	}
	return strings.Join(parts, ", ")
}

func countRows(n int, verb string) string {
	if n == 1 {
		return "1 row " + verb
	}
	return fmt.Sprintf("%d rows %s", n, verb)
}

func rowKey(r []string) string {
	return strings.Join(r, "\x1f")
}

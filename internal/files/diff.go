package files

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStat counts changed lines between two versions of a file.
type DiffStat struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// LineDiff computes line-level additions and removals from before to after.
func LineDiff(before, after string) DiffStat {
	if before == after {
		return DiffStat{}
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var stat DiffStat
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			stat.Added += n
		case diffmatchpatch.DiffDelete:
			stat.Removed += n
		}
	}
	return stat
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

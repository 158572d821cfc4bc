package actions

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// TextDiff computes a line-level diff between kwargs["before"] and
// kwargs["after"], for actions that need to summarize or gate on a
// generated change (e.g. a validate step's on_failure showing what an
// agent's retry altered).
func TextDiff(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
	before, _ := kwargs["before"].(string)
	after, _ := kwargs["after"].(string)

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var added, removed int
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if d.Text != "" && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}

	return map[string]interface{}{
		"unified":      dmp.DiffPrettyText(diffs),
		"lines_added":  added,
		"lines_removed": removed,
		"changed":      added > 0 || removed > 0,
	}, nil
}

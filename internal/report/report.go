// Package report renders per-validator result lines for the learner and
// submits the aggregated attempt outcome upstream.
package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/quarrycli/quarry/internal/result"
)

// Render writes the outcome vector in declaration order: one line per
// validator, a trailing pass count, and for failures one indented line
// carrying the truncated error.
func Render(w io.Writer, res *result.TaskResult) {
	width := len(fmt.Sprint(len(res.Outcomes)))
	passed := 0

	for i, o := range res.Outcomes {
		if o.Passed {
			passed++
			fmt.Fprintf(w, "✓ #%*d %s\n", width, i+1, o.Name)
			continue
		}
		fmt.Fprintf(w, "✗ #%*d %s\n", width, i+1, o.Name)
		if o.Error != "" {
			fmt.Fprintf(w, "    %s\n", o.Error)
		}
	}

	fmt.Fprintf(w, "%d/%d tests passed\n", passed, len(res.Outcomes))

	if res.IsComplete && res.PointsEarned > 0 {
		fmt.Fprintf(w, "task complete: %d points earned\n", res.PointsEarned)
	}
	if !res.IsComplete && res.AttemptNumber > 1 {
		fmt.Fprintf(w, "%s attempt\n", humanize.Ordinal(res.AttemptNumber))
	}
}

package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
)

// ClassOutcome is the augmentation result of one class
type ClassOutcome struct {
	ClassID   int
	Requested int
	Generated int
	Aborted   bool
	Reason    string
}

// AugmentSummary collects the per-class outcomes of an augmentation run
type AugmentSummary struct {
	RunID    string
	Outcomes []ClassOutcome
	// Bytes is the size of everything written.
	Bytes int64
}

// Add records the outcome of a class
func (s *AugmentSummary) Add(o ClassOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Aborted returns the outcomes of the classes that were abandoned
func (s *AugmentSummary) Aborted() []ClassOutcome {
	var out []ClassOutcome
	for _, o := range s.Outcomes {
		if o.Aborted {
			out = append(out, o)
		}
	}
	return out
}

// Generated is the total number of synthetic samples written
func (s *AugmentSummary) Generated() int {
	total := 0
	for _, o := range s.Outcomes {
		total += o.Generated
	}
	return total
}

// Requested is the total deficit the run tried to fill
func (s *AugmentSummary) Requested() int {
	total := 0
	for _, o := range s.Outcomes {
		total += o.Requested
	}
	return total
}

// Write prints one line per class, ordered by class id, and a closing total
func (s *AugmentSummary) Write(w io.Writer, classNames []string) error {
	outcomes := append([]ClassOutcome(nil), s.Outcomes...)
	sort.SliceStable(outcomes, func(i, j int) bool { return outcomes[i].ClassID < outcomes[j].ClassID })

	for _, o := range outcomes {
		status := "done"
		if o.Aborted {
			status = "ABORTED: " + o.Reason
		}
		if _, err := fmt.Fprintf(w, "%d: %s %s/%s %s\n", o.ClassID, labels.ClassName(classNames, o.ClassID),
			humanize.Comma(int64(o.Generated)), humanize.Comma(int64(o.Requested)), status); err != nil {
			return err
		}
	}
	line := fmt.Sprintf("generated %s of %s samples", humanize.Comma(int64(s.Generated())), humanize.Comma(int64(s.Requested())))
	if s.Bytes > 0 {
		line += fmt.Sprintf(" (%s)", humanize.IBytes(uint64(s.Bytes)))
	}
	if n := len(s.Aborted()); n > 0 {
		line += fmt.Sprintf(", %d %s aborted", n, pluralClass(n))
	}
	if s.RunID != "" {
		line += ", run " + s.RunID
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func pluralClass(n int) string {
	if n == 1 {
		return "class"
	}
	return "classes"
}

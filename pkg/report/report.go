// Package report renders class distribution statistics and augmentation run summaries.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Row is the distribution line of one class
type Row struct {
	ClassID   int
	Name      string
	Instances int
	Images    int
	// Share is the fraction of all instances belonging to this class.
	Share float64
}

// DistributionReport describes how instances spread over classes
type DistributionReport struct {
	Rows   []Row
	Total  int
	Files  int
	Mean   float64
	StdDev float64
	// Imbalance is the ratio between the largest and smallest class, +Inf when a
	// known class has no instance at all.
	Imbalance float64
}

// Distribution builds the report for counts. Every class named in classNames is listed,
// including those with no instance.
func Distribution(counts dataset.Counts, classNames []string) DistributionReport {
	ids := make(map[int]struct{})
	for i := range classNames {
		ids[i] = struct{}{}
	}
	for id := range counts.Instances {
		ids[id] = struct{}{}
	}
	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)

	r := DistributionReport{Files: counts.Files}
	values := make([]float64, 0, len(sorted))
	for _, id := range sorted {
		n := counts.Instances[id]
		r.Rows = append(r.Rows, Row{
			ClassID:   id,
			Name:      labels.ClassName(classNames, id),
			Instances: n,
			Images:    counts.Images[id],
		})
		r.Total += n
		values = append(values, float64(n))
	}
	if len(values) == 0 {
		return r
	}

	for i := range r.Rows {
		if r.Total > 0 {
			r.Rows[i].Share = float64(r.Rows[i].Instances) / float64(r.Total)
		}
	}
	r.Mean, r.StdDev = stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		r.StdDev = 0
	}
	if lo, hi := floats.Min(values), floats.Max(values); lo > 0 {
		r.Imbalance = hi / lo
	} else if hi > 0 {
		r.Imbalance = math.Inf(1)
	}
	return r
}

// Write prints one line per class followed by the summary statistics
func (r DistributionReport) Write(w io.Writer) error {
	for _, row := range r.Rows {
		if _, err := fmt.Fprintf(w, "%d: %s → %s instances in %s images (%.1f%%)\n",
			row.ClassID, row.Name, humanize.Comma(int64(row.Instances)), humanize.Comma(int64(row.Images)), row.Share*100); err != nil {
			return err
		}
	}
	imbalance := "n/a"
	switch {
	case math.IsInf(r.Imbalance, 1):
		imbalance = "inf (empty classes)"
	case r.Imbalance > 0:
		imbalance = fmt.Sprintf("%.1fx", r.Imbalance)
	}
	_, err := fmt.Fprintf(w, "%s instances in %s label files, mean %.1f ± %.1f per class, imbalance %s\n",
		humanize.Comma(int64(r.Total)), humanize.Comma(int64(r.Files)), r.Mean, r.StdDev, imbalance)
	return err
}

// Shortfall returns, for every class of counts, its current count against target. The
// Deficit of each quota is what augmentation has to make up.
func Shortfall(counts map[int]int, target int) map[int]types.ClassQuota {
	out := make(map[int]types.ClassQuota, len(counts))
	for id, n := range counts {
		out[id] = types.ClassQuota{ClassID: id, Current: n, Target: target}
	}
	return out
}

// WriteShortfall prints the classes below target, largest deficit first
func WriteShortfall(w io.Writer, quotas map[int]types.ClassQuota, classNames []string) error {
	var below []types.ClassQuota
	for _, q := range quotas {
		if q.Deficit() > 0 {
			below = append(below, q)
		}
	}
	sort.Slice(below, func(i, j int) bool {
		if below[i].Deficit() != below[j].Deficit() {
			return below[i].Deficit() > below[j].Deficit()
		}
		return below[i].ClassID < below[j].ClassID
	})
	for _, q := range below {
		if _, err := fmt.Fprintf(w, "%d: %s needs %s more (%s/%s)\n", q.ClassID, labels.ClassName(classNames, q.ClassID),
			humanize.Comma(int64(q.Deficit())), humanize.Comma(int64(q.Current)), humanize.Comma(int64(q.Target))); err != nil {
			return err
		}
	}
	return nil
}

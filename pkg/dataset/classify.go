package dataset

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// ClassIndex maps a class id to base filenames, in scan order
type ClassIndex map[int][]string

// ClassIDs returns the class ids of the index, sorted
func (ci ClassIndex) ClassIDs() []int {
	ids := make([]int, 0, len(ci))
	for id := range ci {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ClassifySingleClass groups the valid entries whose labels reference exactly one class.
// Empty and multi-class label files are left out. Label files failing to parse are
// excluded too and their errors returned.
func ClassifySingleClass(entries []types.DatasetEntry) (ClassIndex, []error) {
	index := make(ClassIndex)
	errs := readRecords(entries, func(e types.DatasetEntry, record types.LabelRecord) {
		if classID, ok := record.SingleClass(); ok {
			index[classID] = append(index[classID], e.Base)
		}
	})
	return index, errs
}

// ClassifyContaining lists the valid entries whose labels have at least one box of classID
func ClassifyContaining(entries []types.DatasetEntry, classID int) ([]string, []error) {
	var bases []string
	errs := readRecords(entries, func(e types.DatasetEntry, record types.LabelRecord) {
		if record.Contains(classID) {
			bases = append(bases, e.Base)
		}
	})
	return bases, errs
}

// Counts is the class distribution of a dataset
type Counts struct {
	// Instances is the number of boxes per class.
	Instances map[int]int
	// Images is the number of label files referencing each class.
	Images map[int]int
	// Files is the number of label files that parsed.
	Files int
}

// CountInstances tallies boxes and images per class over the valid entries
func CountInstances(entries []types.DatasetEntry) (Counts, []error) {
	counts := Counts{Instances: make(map[int]int), Images: make(map[int]int)}
	errs := readRecords(entries, func(_ types.DatasetEntry, record types.LabelRecord) {
		counts.Files++
		for _, a := range record.Annotations {
			counts.Instances[a.ClassID]++
		}
		for _, id := range record.ClassIDs() {
			counts.Images[id]++
		}
	})
	return counts, errs
}

// ExtractClass copies every valid pair containing classID into outDir/images and
// outDir/labels. It returns the number of pairs copied.
func ExtractClass(entries []types.DatasetEntry, classID int, outDir string) (int, []error, error) {
	bases, errs := ClassifyContaining(entries, classID)
	if len(bases) == 0 {
		return 0, errs, nil
	}
	imagesOut := filepath.Join(outDir, "images")
	labelsOut := filepath.Join(outDir, "labels")
	for _, dir := range []string{imagesOut, labelsOut} {
		if err := utils.EnsureDir(dir); err != nil {
			return 0, errs, err
		}
	}

	byBase := make(map[string]types.DatasetEntry, len(entries))
	for _, e := range entries {
		byBase[e.Base] = e
	}
	copied := 0
	for _, base := range bases {
		e := byBase[base]
		if err := utils.CopyFile(e.ImagePath, filepath.Join(imagesOut, filepath.Base(e.ImagePath))); err != nil {
			return copied, errs, errors.WithMessagef(err, "extracting class %d", classID)
		}
		if err := utils.CopyFile(e.LabelPath, filepath.Join(labelsOut, filepath.Base(e.LabelPath))); err != nil {
			return copied, errs, errors.WithMessagef(err, "extracting class %d", classID)
		}
		copied++
	}
	klog.V(1).Infof("extracted %d pairs of class %d to %q", copied, classID, outDir)
	return copied, errs, nil
}

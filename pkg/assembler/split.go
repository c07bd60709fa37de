package assembler

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Split directory names under the splits root
const (
	TrainDir = "train"
	ValidDir = "valid"
	TestDir  = "test"
)

// Ratios are the train/valid/test fractions of a split
type Ratios struct {
	Train float64 `json:"train"`
	Valid float64 `json:"valid"`
	Test  float64 `json:"test"`
}

// DefaultRatios is the 70/20/10 split
var DefaultRatios = Ratios{Train: 0.7, Valid: 0.2, Test: 0.1}

// Validate checks the ratios are non-negative and sum to 1
func (r Ratios) Validate() error {
	if r.Train < 0 || r.Valid < 0 || r.Test < 0 {
		return errors.Errorf("split ratios must be non-negative, got %v/%v/%v", r.Train, r.Valid, r.Test)
	}
	if sum := r.Train + r.Valid + r.Test; math.Abs(sum-1) > 1e-6 {
		return errors.Errorf("split ratios must sum to 1, got %v", sum)
	}
	return nil
}

func (r Ratios) String() string {
	return fmt.Sprintf("%.0f/%.0f/%.0f", r.Train*100, r.Valid*100, r.Test*100)
}

// SplitResult holds three disjoint partitions of a dataset
type SplitResult struct {
	Train []types.DatasetEntry
	Valid []types.DatasetEntry
	Test  []types.DatasetEntry
}

// Len is the total number of entries across the three splits
func (s SplitResult) Len() int {
	return len(s.Train) + len(s.Valid) + len(s.Test)
}

// Named returns the splits keyed by their directory name
func (s SplitResult) Named() map[string][]types.DatasetEntry {
	return map[string][]types.DatasetEntry{TrainDir: s.Train, ValidDir: s.Valid, TestDir: s.Test}
}

// Split shuffles entries with seed and partitions them: floor(ratio*N) entries for train
// and valid, the remainder for test. Input order does not affect the result.
func Split(entries []types.DatasetEntry, ratios Ratios, seed int64) (SplitResult, error) {
	if err := ratios.Validate(); err != nil {
		return SplitResult{}, err
	}

	shuffled := append([]types.DatasetEntry(nil), entries...)
	sort.SliceStable(shuffled, func(i, j int) bool { return shuffled[i].Base < shuffled[j].Base })
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	n := len(shuffled)
	trainN := int(math.Floor(ratios.Train * float64(n)))
	validN := int(math.Floor(ratios.Valid * float64(n)))
	if trainN+validN > n {
		validN = n - trainN
	}

	return SplitResult{
		Train: shuffled[:trainN:trainN],
		Valid: shuffled[trainN : trainN+validN : trainN+validN],
		Test:  shuffled[trainN+validN:],
	}, nil
}

// WriteSplits copies every pair of result into root/{train,valid,test}/{images,labels}.
// Each of those directories is emptied first, so a pair is never left behind in a split
// it no longer belongs to.
func WriteSplits(result SplitResult, root string, opts ...Option) error {
	o := buildOptions(opts)
	for name, entries := range result.Named() {
		for _, e := range entries {
			if !e.Valid() {
				return errors.Errorf("cannot copy unpaired entry %q into %s split", e.Base, name)
			}
		}
	}

	for _, name := range []string{TrainDir, ValidDir, TestDir} {
		entries := result.Named()[name]
		imagesDir := filepath.Join(root, name, "images")
		labelsDir := filepath.Join(root, name, "labels")
		for _, dir := range []string{imagesDir, labelsDir} {
			if err := utils.ResetDir(dir); err != nil {
				return err
			}
		}

		klog.Infof("copying %d samples to %s", len(entries), filepath.Join(root, name))
		for _, e := range entries {
			if err := utils.CopyFile(e.ImagePath, filepath.Join(imagesDir, filepath.Base(e.ImagePath))); err != nil {
				return err
			}
			if err := utils.CopyFile(e.LabelPath, filepath.Join(labelsDir, filepath.Base(e.LabelPath))); err != nil {
				return err
			}
			if o.progress != nil {
				o.progress()
			}
		}
	}
	return nil
}

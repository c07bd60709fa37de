// Package integrity checks that every image has a label and every label an image.
//
// Augmentation and splitting both trust the pairing, so they run Verify first and only
// proceed when it is empty or the mismatches were explicitly acknowledged.
package integrity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// MissingPairError carries the orphans found by Check
type MissingPairError struct {
	ImagesDir  string
	LabelsDir  string
	Mismatches []types.Mismatch
}

func (e *MissingPairError) Error() string {
	var missingLabel, missingImage int
	for _, m := range e.Mismatches {
		if m.Kind == types.MissingLabel {
			missingLabel++
		} else {
			missingImage++
		}
	}
	return fmt.Sprintf("%d images without label and %d labels without image in %q / %q",
		missingLabel, missingImage, e.ImagesDir, e.LabelsDir)
}

// Checker verifies pairing for a given file layout
type Checker struct {
	scanner *dataset.Scanner
}

// New creates a Checker for the default .jpg/.txt layout
func New() *Checker {
	return &Checker{scanner: dataset.NewScanner()}
}

// NewWithScanner creates a Checker using the extensions of scanner
func NewWithScanner(scanner *dataset.Scanner) *Checker {
	return &Checker{scanner: scanner}
}

// Verify uses the default checker
func Verify(imagesDir, labelsDir string) ([]types.Mismatch, error) {
	return New().Verify(imagesDir, labelsDir)
}

// Verify lists every image lacking a label and every label lacking an image, sorted by
// base filename. The list is empty iff the directories are perfectly paired. An error is
// only returned when the directories cannot be read.
func (c *Checker) Verify(imagesDir, labelsDir string) ([]types.Mismatch, error) {
	idx, err := c.scanner.Scan(imagesDir, labelsDir)
	if err != nil {
		return nil, err
	}
	var mismatches []types.Mismatch
	for _, base := range idx.OrphanImages {
		mismatches = append(mismatches, types.Mismatch{
			Base: base,
			Kind: types.MissingLabel,
			Path: idx.ImagePath(base, c.scanner.ImageExt),
		})
	}
	for _, e := range idx.Invalid() {
		mismatches = append(mismatches, types.Mismatch{
			Base: e.Base,
			Kind: types.MissingImage,
			Path: e.LabelPath,
		})
	}
	sort.Slice(mismatches, func(i, j int) bool {
		if mismatches[i].Base != mismatches[j].Base {
			return mismatches[i].Base < mismatches[j].Base
		}
		return mismatches[i].Kind < mismatches[j].Kind
	})
	return mismatches, nil
}

// Check runs Verify and turns a non-empty result into a *MissingPairError
func (c *Checker) Check(imagesDir, labelsDir string) error {
	mismatches, err := c.Verify(imagesDir, labelsDir)
	if err != nil {
		return err
	}
	if len(mismatches) > 0 {
		return &MissingPairError{ImagesDir: imagesDir, LabelsDir: labelsDir, Mismatches: mismatches}
	}
	return nil
}

// Check uses the default checker
func Check(imagesDir, labelsDir string) error {
	return New().Check(imagesDir, labelsDir)
}

// Describe renders mismatches one per line for summaries
func Describe(mismatches []types.Mismatch) string {
	var sb strings.Builder
	for _, m := range mismatches {
		fmt.Fprintf(&sb, "%s: %s (%s)\n", m.Base, m.Kind, m.Path)
	}
	return sb.String()
}

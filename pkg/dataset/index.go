// Package dataset scans a YOLO images/labels directory pair and classifies label files
// by the classes they contain.
//
// Pairings are recomputed from disk on every call; nothing is cached between scans.
package dataset

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Default file extensions of the YOLO layout
const (
	DefaultImageExt = ".jpg"
	DefaultLabelExt = ".txt"
)

// ErrMissingDir is returned when a scanned root directory does not exist. It is a
// configuration error and aborts the whole run.
var ErrMissingDir = errors.New("dataset directory does not exist")

// Scanner pairs image and label files by base filename
type Scanner struct {
	ImageExt string
	LabelExt string
}

// NewScanner creates a Scanner for the default .jpg/.txt layout
func NewScanner() *Scanner {
	return &Scanner{ImageExt: DefaultImageExt, LabelExt: DefaultLabelExt}
}

// NewScannerWithExt creates a Scanner for custom extensions (with the leading dot)
func NewScannerWithExt(imageExt, labelExt string) *Scanner {
	s := NewScanner()
	if imageExt != "" {
		s.ImageExt = normalizeExt(imageExt)
	}
	if labelExt != "" {
		s.LabelExt = normalizeExt(labelExt)
	}
	return s
}

func normalizeExt(ext string) string {
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

// Index is the result of a scan
type Index struct {
	ImagesDir string
	LabelsDir string

	// Entries has one element per label file, ordered by base filename. Entries whose
	// image is missing are kept with HasImage unset.
	Entries []types.DatasetEntry

	// OrphanImages lists the base filenames of images without a label file.
	OrphanImages []string

	// ImageFiles maps every image base filename to its file name on disk, keeping the
	// extension's original case.
	ImageFiles map[string]string
}

// ImagePath returns the path of the image named base, falling back to the scanner's
// extension when no such image was found.
func (idx *Index) ImagePath(base, ext string) string {
	if name, ok := idx.ImageFiles[base]; ok {
		return filepath.Join(idx.ImagesDir, name)
	}
	return filepath.Join(idx.ImagesDir, base+ext)
}

// Valid returns the entries having both an image and a label
func (idx *Index) Valid() []types.DatasetEntry {
	var valid []types.DatasetEntry
	for _, e := range idx.Entries {
		if e.Valid() {
			valid = append(valid, e)
		}
	}
	return valid
}

// Invalid returns the entries missing their image
func (idx *Index) Invalid() []types.DatasetEntry {
	var invalid []types.DatasetEntry
	for _, e := range idx.Entries {
		if !e.Valid() {
			invalid = append(invalid, e)
		}
	}
	return invalid
}

// Scan uses the default scanner
func Scan(imagesDir, labelsDir string) (*Index, error) {
	return NewScanner().Scan(imagesDir, labelsDir)
}

// Scan enumerates the label files of labelsDir and derives each expected image path by
// swapping the extension. Images without labels are reported in OrphanImages.
func (s *Scanner) Scan(imagesDir, labelsDir string) (*Index, error) {
	for _, dir := range []string{imagesDir, labelsDir} {
		if !utils.DirExists(dir) {
			return nil, errors.Wrapf(ErrMissingDir, "%q", dir)
		}
	}
	labelFiles, err := utils.ListFiles(labelsDir, s.LabelExt)
	if err != nil {
		return nil, err
	}
	imageFiles, err := utils.ListFiles(imagesDir, s.ImageExt)
	if err != nil {
		return nil, err
	}

	images := make(map[string]string, len(imageFiles))
	for _, name := range imageFiles {
		images[utils.BaseName(name)] = name
	}

	idx := &Index{ImagesDir: imagesDir, LabelsDir: labelsDir, ImageFiles: images}
	labelled := make(map[string]bool, len(labelFiles))
	for _, name := range labelFiles {
		base := utils.BaseName(name)
		labelled[base] = true
		_, hasImage := images[base]
		entry := types.DatasetEntry{
			Base:      base,
			ImagePath: idx.ImagePath(base, s.ImageExt),
			LabelPath: filepath.Join(labelsDir, name),
			HasImage:  hasImage,
			HasLabel:  true,
		}
		if !entry.HasImage {
			klog.Warningf("label %q has no image %q", entry.LabelPath, entry.ImagePath)
		}
		idx.Entries = append(idx.Entries, entry)
	}
	for _, name := range imageFiles {
		base := utils.BaseName(name)
		if !labelled[base] {
			klog.Warningf("image %q has no label", filepath.Join(imagesDir, name))
			idx.OrphanImages = append(idx.OrphanImages, base)
		}
	}
	return idx, nil
}

// readRecords parses the label file of every valid entry, calling fn for each record
// that parsed. Files failing to parse are logged, collected and skipped.
func readRecords(entries []types.DatasetEntry, fn func(types.DatasetEntry, types.LabelRecord)) []error {
	var errs []error
	for _, e := range entries {
		if !e.Valid() {
			continue
		}
		record, err := labels.ReadFile(e.LabelPath)
		if err != nil {
			klog.Warningf("skipping %q: %v", e.LabelPath, err)
			errs = append(errs, err)
			continue
		}
		fn(e, record)
	}
	return errs
}


// Package assembler merges image/label sources into one dataset and partitions it into
// train, valid and test splits described by a data.yaml manifest.
package assembler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
)

// Source is a pair of directories holding images and their label files
type Source struct {
	ImagesDir string
	LabelsDir string
}

// MergeStats summarizes a merge
type MergeStats struct {
	Images int
	Labels int
	// Overwritten counts files replaced by a later source of the same merge.
	Overwritten int
	// Replaced counts files that already existed in the destination before the merge.
	// It stays zero unless the destination was kept with KeepExisting.
	Replaced int
	// Bytes is the size of the destination directories after the merge.
	Bytes int64
}

// Option tunes Merge and WriteSplits
type Option func(*options)

type options struct {
	progress     func()
	labelExt     string
	keepExisting bool
}

// WithProgress registers a callback invoked after each copied file
func WithProgress(fn func()) Option {
	return func(o *options) { o.progress = fn }
}

// WithLabelExt changes the label file extension, ".txt" by default
func WithLabelExt(ext string) Option {
	return func(o *options) { o.labelExt = ext }
}

// KeepExisting makes Merge add to the files already in the destination instead of
// clearing it first. Files no source provides anymore are kept.
func KeepExisting() Option {
	return func(o *options) { o.keepExisting = true }
}

func buildOptions(opts []Option) options {
	o := options{labelExt: ".txt"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Merge copies every image and label file of each source into dest, in source order.
// On a filename collision the later source wins; every such overwrite is logged and
// counted.
//
// The destination directories are emptied first, so the result holds exactly the
// files of sources, unless KeepExisting is given.
func Merge(sources []Source, dest Source, opts ...Option) (MergeStats, error) {
	o := buildOptions(opts)
	var stats MergeStats

	for _, dir := range []string{dest.ImagesDir, dest.LabelsDir} {
		for _, src := range sources {
			if sameDir(dir, src.ImagesDir) || sameDir(dir, src.LabelsDir) {
				return stats, errors.Errorf("merge destination %q is also a source", dir)
			}
		}
	}
	for _, dir := range []string{dest.ImagesDir, dest.LabelsDir} {
		if !o.keepExisting {
			if err := utils.ResetDir(dir); err != nil {
				return stats, err
			}
			continue
		}
		if err := utils.EnsureDir(dir); err != nil {
			return stats, errors.Wrapf(err, "failed to create %q", dir)
		}
		if entries, err := os.ReadDir(dir); err == nil && len(entries) > 0 {
			klog.Warningf("keeping %d existing entries in %s, stale files will stay in the dataset", len(entries), dir)
		}
	}

	written := make(map[string]string)
	copyAll := func(srcDir, dstDir string, keep func(string) bool, counter *int) error {
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			return errors.Wrapf(err, "failed to read source %q", srcDir)
		}
		for _, e := range entries {
			if e.IsDir() || !keep(e.Name()) {
				continue
			}
			src := filepath.Join(srcDir, e.Name())
			dst := filepath.Join(dstDir, e.Name())
			if prev, ok := written[dst]; ok {
				klog.Warningf("%s overwrites %s in %s", src, prev, dstDir)
				stats.Overwritten++
			} else if utils.FileExists(dst) {
				klog.V(1).Infof("replacing existing %s", dst)
				stats.Replaced++
			}
			if err := utils.CopyFile(src, dst); err != nil {
				return err
			}
			written[dst] = src
			*counter++
			if o.progress != nil {
				o.progress()
			}
		}
		return nil
	}

	for _, src := range sources {
		if err := copyAll(src.ImagesDir, dest.ImagesDir, utils.IsImageFile, &stats.Images); err != nil {
			return stats, err
		}
		isLabel := func(name string) bool { return strings.EqualFold(filepath.Ext(name), o.labelExt) }
		if err := copyAll(src.LabelsDir, dest.LabelsDir, isLabel, &stats.Labels); err != nil {
			return stats, err
		}
		klog.Infof("merged %s and %s", src.ImagesDir, src.LabelsDir)
	}

	for _, dir := range []string{dest.ImagesDir, dest.LabelsDir} {
		size, err := utils.DirSize(dir)
		if err != nil {
			return stats, err
		}
		stats.Bytes += size
	}
	return stats, nil
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

// CountFiles returns how many image and label files Merge would copy from sources
func CountFiles(sources []Source, opts ...Option) (int, error) {
	o := buildOptions(opts)
	total := 0
	for _, src := range sources {
		for _, dir := range []string{src.ImagesDir, src.LabelsDir} {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return 0, errors.Wrapf(err, "failed to read source %q", dir)
			}
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				if (dir == src.ImagesDir && utils.IsImageFile(e.Name())) ||
					(dir == src.LabelsDir && strings.EqualFold(filepath.Ext(e.Name()), o.labelExt)) {
					total++
				}
			}
		}
	}
	return total, nil
}

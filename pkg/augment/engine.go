// Package augment generates synthetic image/label pairs for underrepresented classes.
//
// The engine samples source images of a plan entry with replacement, runs them through a
// randomized Transformer, converts the returned boxes back to YOLO form using the
// transformed image's dimensions and persists each sample under a deterministic name
// "{source}_aug_{sequence:03d}". A class that keeps failing is abandoned once its
// consecutive-failure budget is spent; the caller moves on to the next class.
package augment

import (
	"fmt"
	"image"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/boxcodec"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/processing"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// DefaultFailureBudget is the number of consecutive failed attempts after which a class
// is abandoned.
const DefaultFailureBudget = 100

// Result is what a Transformer returns: the new image and the boxes that survived,
// in pixel corners of the new image. Boxes may be fewer than the input.
type Result struct {
	Image   image.Image
	Boxes   []types.CornerBox
	Classes []int
}

// Transformer applies a randomized augmentation to an image and its boxes
type Transformer interface {
	Transform(img image.Image, boxes []types.CornerBox, classes []int) (Result, error)
}

// TransformerFunc adapts a function to the Transformer interface
type TransformerFunc func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error)

// Transform implements Transformer
func (f TransformerFunc) Transform(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
	return f(img, boxes, classes)
}

// Options configures an Engine
type Options struct {
	// ImagesDir and LabelsDir receive the synthetic samples.
	ImagesDir string
	LabelsDir string

	// ImageExt is the extension of source and output images, ".jpg" by default.
	ImageExt string
	// LabelExt is the extension of label files, ".txt" by default.
	LabelExt string

	// Seed feeds the source sampler.
	Seed int64

	// FailureBudget defaults to DefaultFailureBudget.
	FailureBudget int

	Overwrite OverwritePolicy

	// OnSample, if set, is called after each sample is persisted.
	OnSample func(types.SyntheticSample)
	// OnFailure, if set, is called after each failed attempt.
	OnFailure func(*TransformFailure)
}

// Engine drives a Transformer over augmentation plan entries
type Engine struct {
	transformer Transformer
	processor   *processing.Processor
	opts        Options
	rng         *rand.Rand
}

// NewEngine creates an Engine writing into opts.ImagesDir and opts.LabelsDir, creating
// them if needed.
func NewEngine(transformer Transformer, processor *processing.Processor, opts Options) (*Engine, error) {
	if transformer == nil {
		return nil, errors.New("augment: nil transformer")
	}
	if processor == nil {
		processor = processing.NewProcessor()
	}
	if opts.ImagesDir == "" || opts.LabelsDir == "" {
		return nil, errors.New("augment: output images and labels directories are required")
	}
	if opts.ImageExt == "" {
		opts.ImageExt = ".jpg"
	}
	if opts.LabelExt == "" {
		opts.LabelExt = ".txt"
	}
	if opts.FailureBudget <= 0 {
		opts.FailureBudget = DefaultFailureBudget
	}
	for _, dir := range []string{opts.ImagesDir, opts.LabelsDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, &WriteError{Path: dir, Err: err}
		}
	}
	return &Engine{
		transformer: transformer,
		processor:   processor,
		opts:        opts,
		rng:         rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// SyntheticName is the deterministic base filename of a synthetic sample
func SyntheticName(source string, sequence int) string {
	return fmt.Sprintf("%s_aug_%03d", source, sequence)
}

// Generate produces target synthetic samples of classID from the sources listed in
// entry, reading them from srcImagesDir and srcLabelsDir.
//
// It returns the samples written so far together with a *ClassAugmentationAborted when
// the class had to be abandoned, or a *WriteError when persisting failed. Only the
// latter should stop the run.
func (e *Engine) Generate(entry types.PlanEntry, classID int, srcImagesDir, srcLabelsDir string, target int) ([]types.SyntheticSample, error) {
	if target <= 0 {
		return nil, nil
	}
	if len(entry.Bases) == 0 {
		return nil, &ClassAugmentationAborted{ClassID: classID, Requested: target, Reason: "no eligible source images"}
	}

	sources := source{
		images: e.resolve(srcImagesDir, e.opts.ImageExt),
		labels: e.resolve(srcLabelsDir, e.opts.LabelExt),
	}

	var samples []types.SyntheticSample
	generated := 0
	consecutiveFailures := 0
	sequence := 0

	for generated < target {
		// Sampling with replacement: small eligible sets must still reach large deficits.
		base := entry.Bases[e.rng.Intn(len(entry.Bases))]

		name, next, err := e.claimName(base, sequence)
		if err != nil {
			return samples, &ClassAugmentationAborted{
				ClassID:   classID,
				Generated: generated,
				Requested: target,
				Reason:    "output name collision",
				Cause:     err,
			}
		}
		sequence = next

		sample, failure, err := e.attempt(base, classID, sources, name, sequence)
		if err != nil {
			return samples, err
		}
		if failure != nil {
			consecutiveFailures++
			klog.V(1).Infof("class %d attempt failed (%d/%d): %v", classID, consecutiveFailures, e.opts.FailureBudget, failure)
			if e.opts.OnFailure != nil {
				e.opts.OnFailure(failure)
			}
			if consecutiveFailures >= e.opts.FailureBudget {
				return samples, &ClassAugmentationAborted{
					ClassID:   classID,
					Generated: generated,
					Requested: target,
					Reason:    fmt.Sprintf("%d consecutive failed attempts", consecutiveFailures),
					Cause:     failure,
				}
			}
			continue
		}

		samples = append(samples, sample)
		generated++
		sequence++
		consecutiveFailures = 0
		if e.opts.OnSample != nil {
			e.opts.OnSample(sample)
		}
	}
	return samples, nil
}

// claimName returns the output name for base at sequence according to the overwrite
// policy, with the sequence actually used.
func (e *Engine) claimName(base string, sequence int) (string, int, error) {
	for {
		name := SyntheticName(base, sequence)
		if !e.exists(name) {
			return name, sequence, nil
		}
		switch e.opts.Overwrite {
		case OverwriteReplace:
			klog.V(1).Infof("replacing existing synthetic sample %q", name)
			return name, sequence, nil
		case OverwriteSkip:
			klog.V(1).Infof("skipping existing synthetic sample %q", name)
			sequence++
		default:
			return "", sequence, errors.Wrapf(ErrOutputExists, "%q", name)
		}
	}
}

// source locates the files of source images by base filename
type source struct {
	images func(base string) string
	labels func(base string) string
}

// resolve maps a base filename to its file in dir. Extensions match case-insensitively
// and the file keeps its own spelling (IMG1.JPG).
func (e *Engine) resolve(dir, ext string) func(string) string {
	names := make(map[string]string)
	if files, err := utils.ListFiles(dir, ext); err == nil {
		for _, f := range files {
			names[utils.BaseName(f)] = f
		}
	} else {
		klog.Warningf("cannot list %s: %v", dir, err)
	}
	return func(base string) string {
		if name, ok := names[base]; ok {
			return filepath.Join(dir, name)
		}
		return filepath.Join(dir, base+ext)
	}
}

func (e *Engine) exists(name string) bool {
	return utils.FileExists(e.imagePath(name)) || utils.FileExists(e.labelPath(name))
}

func (e *Engine) imagePath(name string) string {
	return filepath.Join(e.opts.ImagesDir, name+e.opts.ImageExt)
}

func (e *Engine) labelPath(name string) string {
	return filepath.Join(e.opts.LabelsDir, name+e.opts.LabelExt)
}

// attempt runs one augmentation of base. A non-nil failure is a recoverable outcome; a
// non-nil error is a fatal *WriteError.
func (e *Engine) attempt(base string, classID int, src source, name string, sequence int) (types.SyntheticSample, *TransformFailure, error) {
	unusable := func(err error) *TransformFailure {
		return &TransformFailure{Kind: FailureSourceUnusable, Base: base, Err: err}
	}

	img, err := e.processor.LoadImage(src.images(base))
	if err != nil {
		return types.SyntheticSample{}, unusable(err), nil
	}
	record, err := labels.ReadFile(src.labels(base))
	if err != nil {
		return types.SyntheticSample{}, unusable(err), nil
	}
	// Plan entries may come from multi-class sources: keep only this class.
	boxes := record.Boxes(classID)
	if len(boxes) == 0 {
		return types.SyntheticSample{}, unusable(errors.Errorf("no boxes of class %d", classID)), nil
	}

	srcW, srcH := processing.Dimensions(img)
	corners := boxcodec.ToAbsoluteCornersAll(boxes, srcW, srcH)
	classes := make([]int, len(corners))
	for i := range classes {
		classes[i] = classID
	}

	result, err := e.transform(img, corners, classes)
	if err != nil {
		return types.SyntheticSample{}, &TransformFailure{Kind: FailureRaised, Base: base, Err: err}, nil
	}

	// Normalize against the transformed frame, never the source one.
	dstW, dstH := processing.Dimensions(result.Image)
	out := types.LabelRecord{Base: name}
	for _, b := range result.Boxes {
		clipped := boxcodec.Clip(b, dstW, dstH)
		if !clipped.Valid() {
			continue
		}
		nb := boxcodec.ToNormalizedCenter(clipped, dstW, dstH)
		if !boxcodec.Valid(nb) {
			continue
		}
		out.Annotations = append(out.Annotations, types.Annotation{ClassID: classID, Box: nb})
	}
	if len(out.Annotations) == 0 {
		return types.SyntheticSample{}, &TransformFailure{Kind: FailureEmptyBoxes, Base: base}, nil
	}

	imagePath, labelPath := e.imagePath(name), e.labelPath(name)
	if err := e.processor.SaveImage(result.Image, imagePath); err != nil {
		return types.SyntheticSample{}, nil, &WriteError{Path: imagePath, Err: err}
	}
	if err := labels.WriteFile(labelPath, out); err != nil {
		// Keep the output directory paired.
		_ = os.Remove(imagePath)
		return types.SyntheticSample{}, nil, &WriteError{Path: labelPath, Err: err}
	}
	return types.SyntheticSample{
		Base:      name,
		Source:    base,
		ClassID:   classID,
		Sequence:  sequence,
		ImagePath: imagePath,
		LabelPath: labelPath,
		Record:    out,
	}, nil, nil
}

// transform calls the transformer, turning panics and empty images into errors
func (e *Engine) transform(img image.Image, boxes []types.CornerBox, classes []int) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("transformer panicked: %v", r)
		}
	}()
	result, err = e.transformer.Transform(img, boxes, classes)
	if err != nil {
		return Result{}, err
	}
	if result.Image == nil || result.Image.Bounds().Empty() {
		return Result{}, errors.New("transformer returned an empty image")
	}
	return result, nil
}

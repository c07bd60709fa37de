package augment

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/planner"
	"github.com/menta2k/yolo-dataset-builder/pkg/processing"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

type fixture struct {
	srcImages, srcLabels string
	outImages, outLabels string
}

func newFixture(t *testing.T) fixture {
	root := t.TempDir()
	f := fixture{
		srcImages: filepath.Join(root, "src", "images"),
		srcLabels: filepath.Join(root, "src", "labels"),
		outImages: filepath.Join(root, "out", "images"),
		outLabels: filepath.Join(root, "out", "labels"),
	}
	require.NoError(t, utils.EnsureDir(f.srcImages))
	require.NoError(t, utils.EnsureDir(f.srcLabels))
	return f
}

// addSource writes a 64x48 gray image and its label file
func (f fixture) addSource(t *testing.T, base string, annotations ...types.Annotation) {
	img := imaging.New(64, 48, color.NRGBA{90, 120, 90, 255})
	require.NoError(t, processing.NewProcessor().SaveImage(img, filepath.Join(f.srcImages, base+".jpg")))
	require.NoError(t, labels.WriteFile(filepath.Join(f.srcLabels, base+".txt"), types.LabelRecord{Annotations: annotations}))
}

func (f fixture) engine(t *testing.T, tr Transformer, mutate func(*Options)) *Engine {
	opts := Options{ImagesDir: f.outImages, LabelsDir: f.outLabels, Seed: 42}
	if mutate != nil {
		mutate(&opts)
	}
	e, err := NewEngine(tr, nil, opts)
	require.NoError(t, err)
	return e
}

func box(classID int) types.Annotation {
	return types.Annotation{ClassID: classID, Box: types.NormalizedBox{XCenter: 0.5, YCenter: 0.5, Width: 0.25, Height: 0.5}}
}

var identity = TransformerFunc(func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
	return Result{Image: img, Boxes: boxes, Classes: classes}, nil
})

func TestGenerateFillsDeficit(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.addSource(t, fmt.Sprintf("img_%02d", i), box(3))
	}

	index, err := dataset.NewScanner().Scan(f.srcImages, f.srcLabels)
	require.NoError(t, err)
	classes, errs := dataset.ClassifySingleClass(index.Valid())
	require.Empty(t, errs)
	plan := planner.BuildPlan(classes, planner.UniformQuotas([]int{3}, 12))
	entry, ok := plan.Entry(3)
	require.True(t, ok)
	require.Equal(t, 2, entry.Deficit)

	var seen []string
	e := f.engine(t, identity, func(o *Options) {
		o.OnSample = func(s types.SyntheticSample) { seen = append(seen, s.Base) }
	})
	samples, err := e.Generate(entry, 3, f.srcImages, f.srcLabels, entry.Deficit)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Len(t, seen, 2)

	for i, s := range samples {
		assert.Equal(t, SyntheticName(s.Source, i), s.Base)
		assert.Equal(t, i, s.Sequence)
		assert.Contains(t, entry.Bases, s.Source)
		assert.FileExists(t, s.ImagePath)
		assert.FileExists(t, s.LabelPath)

		record, err := labels.ReadFile(s.LabelPath)
		require.NoError(t, err)
		require.Len(t, record.Annotations, 1)
		assert.Equal(t, 3, record.Annotations[0].ClassID)
		assert.InDelta(t, 0.25, record.Annotations[0].Box.Width, 1e-5)
	}

	out, err := utils.ListFiles(f.outImages, ".jpg")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGenerateSamplesWithReplacement(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "only", box(1))

	e := f.engine(t, identity, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"only"}, Deficit: 25}, 1, f.srcImages, f.srcLabels, 25)
	require.NoError(t, err)
	require.Len(t, samples, 25)
	assert.Equal(t, "only_aug_024", samples[24].Base)

	out, err := utils.ListFiles(f.outLabels, ".txt")
	require.NoError(t, err)
	assert.Len(t, out, 25)
}

func TestGenerateZeroTarget(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, identity, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"x"}}, 1, f.srcImages, f.srcLabels, 0)
	assert.NoError(t, err)
	assert.Empty(t, samples)
}

func TestGenerateNoEligibleSources(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t, identity, nil)
	_, err := e.Generate(types.PlanEntry{ClassID: 5, Deficit: 4}, 5, f.srcImages, f.srcLabels, 4)

	var aborted *ClassAugmentationAborted
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, 5, aborted.ClassID)
	assert.Equal(t, 0, aborted.Generated)
	assert.Equal(t, 4, aborted.Requested)
}

func TestGenerateFailureBudget(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(2))

	calls := 0
	failing := TransformerFunc(func(image.Image, []types.CornerBox, []int) (Result, error) {
		calls++
		return Result{}, errors.New("boom")
	})
	e := f.engine(t, failing, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 2, Bases: []string{"a"}}, 2, f.srcImages, f.srcLabels, 5)

	assert.Empty(t, samples)
	assert.Equal(t, DefaultFailureBudget, calls)

	var aborted *ClassAugmentationAborted
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, 0, aborted.Generated)
	assert.Equal(t, 5, aborted.Requested)

	var failure *TransformFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, FailureRaised, failure.Kind)

	out, err := utils.ListFiles(f.outImages, ".jpg")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerateCustomBudget(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(2))

	calls := 0
	failing := TransformerFunc(func(image.Image, []types.CornerBox, []int) (Result, error) {
		calls++
		panic("broken transform")
	})
	failures := 0
	e := f.engine(t, failing, func(o *Options) {
		o.FailureBudget = 7
		o.OnFailure = func(*TransformFailure) { failures++ }
	})
	_, err := e.Generate(types.PlanEntry{ClassID: 2, Bases: []string{"a"}}, 2, f.srcImages, f.srcLabels, 1)

	var aborted *ClassAugmentationAborted
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, 7, calls)
	assert.Equal(t, 7, failures)
}

func TestGenerateEmptyBoxesCountAsFailure(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(2))

	dropAll := TransformerFunc(func(img image.Image, _ []types.CornerBox, _ []int) (Result, error) {
		return Result{Image: img}, nil
	})
	e := f.engine(t, dropAll, nil)
	_, err := e.Generate(types.PlanEntry{ClassID: 2, Bases: []string{"a"}}, 2, f.srcImages, f.srcLabels, 3)

	var failure *TransformFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, FailureEmptyBoxes, failure.Kind)
}

func TestGenerateFailureCounterResets(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(2))

	calls := 0
	// Succeeds on every third call: never reaches a budget of 3 consecutive failures.
	flaky := TransformerFunc(func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
		calls++
		if calls%3 != 0 {
			return Result{}, errors.New("flaky")
		}
		return Result{Image: img, Boxes: boxes, Classes: classes}, nil
	})
	e := f.engine(t, flaky, func(o *Options) { o.FailureBudget = 3 })
	samples, err := e.Generate(types.PlanEntry{ClassID: 2, Bases: []string{"a"}}, 2, f.srcImages, f.srcLabels, 4)
	require.NoError(t, err)
	assert.Len(t, samples, 4)
	assert.Equal(t, 12, calls)
}

func TestGenerateUnusableSourceCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.srcImages, "broken.jpg"), []byte("not an image"), 0o644))
	require.NoError(t, labels.WriteFile(filepath.Join(f.srcLabels, "broken.txt"), types.LabelRecord{Annotations: []types.Annotation{box(4)}}))

	calls := 0
	counting := TransformerFunc(func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
		calls++
		return Result{Image: img, Boxes: boxes, Classes: classes}, nil
	})
	e := f.engine(t, counting, func(o *Options) { o.FailureBudget = 10 })
	_, err := e.Generate(types.PlanEntry{ClassID: 4, Bases: []string{"broken"}}, 4, f.srcImages, f.srcLabels, 2)

	var failure *TransformFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, FailureSourceUnusable, failure.Kind)
	assert.Zero(t, calls, "transformer must not run on an unusable source")
}

func TestGenerateKeepsOnlyRequestedClass(t *testing.T) {
	f := newFixture(t)
	other := types.Annotation{ClassID: 8, Box: types.NormalizedBox{XCenter: 0.2, YCenter: 0.2, Width: 0.1, Height: 0.1}}
	f.addSource(t, "mixed", box(3), other)

	var received int
	counting := TransformerFunc(func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
		received = len(boxes)
		return Result{Image: img, Boxes: boxes, Classes: classes}, nil
	})
	e := f.engine(t, counting, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 3, Bases: []string{"mixed"}}, 3, f.srcImages, f.srcLabels, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 1, received)
	assert.Equal(t, []int{3}, samples[0].Record.ClassIDs())
}

func TestGenerateNormalizesAgainstTransformedSize(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(1))

	// Crop to the left 32x24 quadrant and shift boxes accordingly; one box leaves the frame.
	crop := TransformerFunc(func(img image.Image, boxes []types.CornerBox, classes []int) (Result, error) {
		out := imaging.Crop(img, image.Rect(0, 0, 32, 24))
		return Result{
			Image: out,
			Boxes: []types.CornerBox{
				{XMin: 8, YMin: 6, XMax: 24, YMax: 18},
				{XMin: 40, YMin: 30, XMax: 50, YMax: 40},
			},
			Classes: []int{1, 1},
		}, nil
	})
	e := f.engine(t, crop, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"a"}}, 1, f.srcImages, f.srcLabels, 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)

	require.Len(t, samples[0].Record.Annotations, 1)
	got := samples[0].Record.Annotations[0].Box
	assert.InDelta(t, 0.5, got.XCenter, 1e-6)
	assert.InDelta(t, 0.5, got.YCenter, 1e-6)
	assert.InDelta(t, 0.5, got.Width, 1e-6)
	assert.InDelta(t, 0.5, got.Height, 1e-6)

	img, err := processing.NewProcessor().LoadImage(samples[0].ImagePath)
	require.NoError(t, err)
	w, h := processing.Dimensions(img)
	assert.Equal(t, 32, w)
	assert.Equal(t, 24, h)
}

func TestGenerateDeterministic(t *testing.T) {
	f := newFixture(t)
	bases := []string{"a", "b", "c", "d"}
	for _, b := range bases {
		f.addSource(t, b, box(0))
	}
	run := func(dir string) []string {
		e, err := NewEngine(identity, nil, Options{
			ImagesDir: filepath.Join(dir, "images"),
			LabelsDir: filepath.Join(dir, "labels"),
			Seed:      7,
		})
		require.NoError(t, err)
		samples, err := e.Generate(types.PlanEntry{ClassID: 0, Bases: bases}, 0, f.srcImages, f.srcLabels, 8)
		require.NoError(t, err)
		var names []string
		for _, s := range samples {
			names = append(names, s.Base)
		}
		return names
	}
	assert.Equal(t, run(t.TempDir()), run(t.TempDir()))
}

func TestOverwritePolicies(t *testing.T) {
	existing := func(t *testing.T, f fixture) {
		require.NoError(t, utils.EnsureDir(f.outImages))
		require.NoError(t, utils.EnsureDir(f.outLabels))
		require.NoError(t, os.WriteFile(filepath.Join(f.outLabels, "a_aug_000.txt"), []byte("keep\n"), 0o644))
	}

	t.Run("refuse", func(t *testing.T) {
		f := newFixture(t)
		f.addSource(t, "a", box(1))
		existing(t, f)

		e := f.engine(t, identity, nil)
		samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"a"}}, 1, f.srcImages, f.srcLabels, 2)
		assert.Empty(t, samples)

		var aborted *ClassAugmentationAborted
		require.True(t, errors.As(err, &aborted))
		assert.True(t, errors.Is(err, ErrOutputExists))

		data, err := os.ReadFile(filepath.Join(f.outLabels, "a_aug_000.txt"))
		require.NoError(t, err)
		assert.Equal(t, "keep\n", string(data))
	})

	t.Run("skip", func(t *testing.T) {
		f := newFixture(t)
		f.addSource(t, "a", box(1))
		existing(t, f)

		e := f.engine(t, identity, func(o *Options) { o.Overwrite = OverwriteSkip })
		samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"a"}}, 1, f.srcImages, f.srcLabels, 2)
		require.NoError(t, err)
		require.Len(t, samples, 2)
		assert.Equal(t, "a_aug_001", samples[0].Base)
		assert.Equal(t, "a_aug_002", samples[1].Base)

		data, err := os.ReadFile(filepath.Join(f.outLabels, "a_aug_000.txt"))
		require.NoError(t, err)
		assert.Equal(t, "keep\n", string(data))
	})

	t.Run("replace", func(t *testing.T) {
		f := newFixture(t)
		f.addSource(t, "a", box(1))
		existing(t, f)

		e := f.engine(t, identity, func(o *Options) { o.Overwrite = OverwriteReplace })
		samples, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"a"}}, 1, f.srcImages, f.srcLabels, 1)
		require.NoError(t, err)
		require.Len(t, samples, 1)
		assert.Equal(t, "a_aug_000", samples[0].Base)

		record, err := labels.ReadFile(filepath.Join(f.outLabels, "a_aug_000.txt"))
		require.NoError(t, err)
		assert.Len(t, record.Annotations, 1)
	})
}

func TestGenerateWriteErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "a", box(1))
	e := f.engine(t, identity, nil)

	// Replace the output images directory by a regular file.
	require.NoError(t, os.RemoveAll(f.outImages))
	require.NoError(t, os.WriteFile(f.outImages, []byte("x"), 0o644))

	_, err := e.Generate(types.PlanEntry{ClassID: 1, Bases: []string{"a"}}, 1, f.srcImages, f.srcLabels, 1)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	var aborted *ClassAugmentationAborted
	assert.False(t, errors.As(err, &aborted))
}

func TestParseOverwritePolicy(t *testing.T) {
	for in, want := range map[string]OverwritePolicy{"": OverwriteRefuse, "Skip": OverwriteSkip, "replace": OverwriteReplace} {
		got, err := ParseOverwritePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOverwritePolicy("clobber")
	assert.Error(t, err)
}

func TestGenerateUpperCaseExtension(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, "IMG1", box(3))
	require.NoError(t, os.Rename(filepath.Join(f.srcImages, "IMG1.jpg"), filepath.Join(f.srcImages, "IMG1.JPG")))

	index, err := dataset.NewScanner().Scan(f.srcImages, f.srcLabels)
	require.NoError(t, err)
	valid := index.Valid()
	require.Len(t, valid, 1)
	assert.Equal(t, filepath.Join(f.srcImages, "IMG1.JPG"), valid[0].ImagePath)

	e := f.engine(t, identity, nil)
	samples, err := e.Generate(types.PlanEntry{ClassID: 3, Bases: []string{"IMG1"}, Deficit: 2}, 3, f.srcImages, f.srcLabels, 2)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

package transform

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-dataset-builder/pkg/augment"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

var _ augment.Transformer = (*Pipeline)(nil)

func testImage(w, h int) *image.NRGBA {
	img := imaging.New(w, h, color.NRGBA{100, 150, 100, 255})
	// Paint the left half brighter so flips are observable.
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.SetNRGBA(x, y, color.NRGBA{250, 250, 250, 255})
		}
	}
	return img
}

func newSample(w, h int, boxes ...types.CornerBox) *Sample {
	classes := make([]int, len(boxes))
	return &Sample{Image: testImage(w, h), Boxes: boxes, Classes: classes}
}

func TestHorizontalFlip(t *testing.T) {
	s := newSample(100, 50, types.CornerBox{XMin: 10, YMin: 5, XMax: 30, YMax: 25})
	require.NoError(t, HorizontalFlip(1).Apply(rand.New(rand.NewSource(1)), s))

	assert.Equal(t, types.CornerBox{XMin: 70, YMin: 5, XMax: 90, YMax: 25}, s.Boxes[0])
	assert.Equal(t, color.NRGBA{100, 150, 100, 255}, s.Image.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{250, 250, 250, 255}, s.Image.NRGBAAt(99, 0))
}

func TestRotateBox(t *testing.T) {
	// A quarter turn counter-clockwise moves the top-left corner to the bottom-left.
	got := rotateBox(types.CornerBox{XMin: 10, YMin: 10, XMax: 20, YMax: 20}, 90, 100, 50, 50, 100)
	assert.InDelta(t, 10, got.XMin, 1e-9)
	assert.InDelta(t, 80, got.YMin, 1e-9)
	assert.InDelta(t, 20, got.XMax, 1e-9)
	assert.InDelta(t, 90, got.YMax, 1e-9)

	same := rotateBox(types.CornerBox{XMin: 10, YMin: 10, XMax: 20, YMax: 20}, 0, 100, 50, 100, 50)
	assert.InDelta(t, 10, same.XMin, 1e-9)
	assert.InDelta(t, 20, same.YMax, 1e-9)
}

func TestRotateKeepsSize(t *testing.T) {
	s := newSample(120, 80, types.CornerBox{XMin: 40, YMin: 20, XMax: 80, YMax: 60})
	rotate(s, 8)
	w, h := s.Size()
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)

	// A centered box grows into its rotated hull but stays roughly centered.
	b := s.Boxes[0]
	assert.InDelta(t, 60, (b.XMin+b.XMax)/2, 1.5)
	assert.InDelta(t, 40, (b.YMin+b.YMax)/2, 1.5)
	assert.Greater(t, b.Width(), 40.0)
}

func TestRandomCrop(t *testing.T) {
	s := newSample(300, 300,
		types.CornerBox{XMin: 100, YMin: 100, XMax: 200, YMax: 200},
	)
	require.NoError(t, RandomCrop(1, 256, 256).Apply(rand.New(rand.NewSource(3)), s))
	w, h := s.Size()
	assert.Equal(t, 256, w)
	assert.Equal(t, 256, h)
	assert.InDelta(t, 100, s.Boxes[0].Width(), 1e-9)

	small := newSample(200, 200, types.CornerBox{XMin: 1, YMin: 1, XMax: 5, YMax: 5})
	require.NoError(t, RandomCrop(1, 256, 256).Apply(rand.New(rand.NewSource(3)), small))
	w, _ = small.Size()
	assert.Equal(t, 200, w, "images smaller than the window are not cropped")
}

func TestScale(t *testing.T) {
	s := newSample(200, 100, types.CornerBox{XMin: 20, YMin: 10, XMax: 120, YMax: 60})
	require.NoError(t, Scale(1, 1.05, 1.05).Apply(rand.New(rand.NewSource(1)), s))
	w, h := s.Size()
	assert.Equal(t, 210, w)
	assert.Equal(t, 105, h)
	assert.InDelta(t, 126, s.Boxes[0].XMax, 1e-9)
	assert.InDelta(t, 63, s.Boxes[0].YMax, 1e-9)
}

func TestPhotometricStepsKeepGeometry(t *testing.T) {
	steps := []Step{
		BrightnessContrast(1, 20),
		GaussNoise(1, 5, 15),
		SaturationGamma(1, 30, 0.2),
		MotionBlur(1),
		RandomShadow(1),
		RandomFog(1),
		Downscale(1, 0.5, 0.9),
		SigmoidContrast(1),
	}
	for _, step := range steps {
		t.Run(step.Name, func(t *testing.T) {
			box := types.CornerBox{XMin: 10, YMin: 10, XMax: 40, YMax: 30}
			s := newSample(64, 48, box)
			require.NoError(t, step.Apply(rand.New(rand.NewSource(5)), s))
			w, h := s.Size()
			assert.Equal(t, 64, w)
			assert.Equal(t, 48, h)
			assert.Equal(t, box, s.Boxes[0])
			assert.False(t, step.Geometric)
		})
	}
}

func TestPipelineDropsBoxesLeavingFrame(t *testing.T) {
	shift := Step{Name: "shift", P: 1, Geometric: true, Apply: func(_ *rand.Rand, s *Sample) error {
		for i := range s.Boxes {
			s.Boxes[i].XMin += 90
			s.Boxes[i].XMax += 90
		}
		return nil
	}}
	p := NewPipeline(1, shift)
	res, err := p.Transform(testImage(100, 100),
		[]types.CornerBox{{XMin: 0, YMin: 0, XMax: 20, YMax: 20}, {XMin: 30, YMin: 0, XMax: 50, YMax: 20}},
		[]int{4, 7})
	require.NoError(t, err)
	require.Len(t, res.Boxes, 1)
	assert.Equal(t, []int{4}, res.Classes)
	assert.Equal(t, types.CornerBox{XMin: 90, YMin: 0, XMax: 100, YMax: 20}, res.Boxes[0])
}

func TestPipelineDoesNotMutateInput(t *testing.T) {
	img := testImage(300, 300)
	boxes := []types.CornerBox{{XMin: 50, YMin: 50, XMax: 150, YMax: 150}}
	p := NewPipeline(9, HorizontalFlip(1), RandomCrop(1, 256, 256), GaussNoise(1, 10, 10))
	_, err := p.Transform(img, boxes, []int{0})
	require.NoError(t, err)

	assert.Equal(t, types.CornerBox{XMin: 50, YMin: 50, XMax: 150, YMax: 150}, boxes[0])
	assert.Equal(t, color.NRGBA{250, 250, 250, 255}, img.NRGBAAt(0, 0))
}

func TestPipelineStepError(t *testing.T) {
	failing := Step{Name: "broken", P: 1, Apply: func(*rand.Rand, *Sample) error { return errors.New("nope") }}
	_, err := NewPipeline(1, failing).Transform(testImage(10, 10), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = NewPipeline(1).Transform(testImage(10, 10), []types.CornerBox{{XMax: 1, YMax: 1}}, nil)
	assert.Error(t, err)
}

func TestDefaultPipeline(t *testing.T) {
	run := func() []augment.Result {
		p := Default(11, 256)
		var results []augment.Result
		for i := 0; i < 20; i++ {
			res, err := p.Transform(testImage(320, 320),
				[]types.CornerBox{{XMin: 100, YMin: 100, XMax: 220, YMax: 220}}, []int{2})
			require.NoError(t, err)
			results = append(results, res)
		}
		return results
	}

	first := run()
	for _, res := range first {
		w, h := res.Image.Bounds().Dx(), res.Image.Bounds().Dy()
		for _, b := range res.Boxes {
			assert.True(t, b.Valid())
			assert.GreaterOrEqual(t, b.XMin, 0.0)
			assert.GreaterOrEqual(t, b.YMin, 0.0)
			assert.LessOrEqual(t, b.XMax, float64(w))
			assert.LessOrEqual(t, b.YMax, float64(h))
		}
	}

	second := run()
	for i := range first {
		assert.Equal(t, first[i].Boxes, second[i].Boxes, "same seed must give the same boxes")
	}
	assert.Len(t, Default(1, 256).Steps(), 12)
}

func TestPipelineCallsShareOneStream(t *testing.T) {
	draws := func() []int64 {
		var got []int64
		p := NewPipeline(5, Step{Name: "draw", P: 1, Apply: func(rng *rand.Rand, _ *Sample) error {
			got = append(got, rng.Int63())
			return nil
		}})
		for i := 0; i < 3; i++ {
			_, err := p.Transform(testImage(8, 8), nil, nil)
			require.NoError(t, err)
		}
		return got
	}

	first := draws()
	require.Len(t, first, 3)
	assert.NotEqual(t, first[0], first[1], "each call continues the stream")
	assert.Equal(t, first, draws())
}

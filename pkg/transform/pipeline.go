// Package transform provides the randomized photometric and geometric augmentations
// applied to source images, keeping pixel-corner boxes consistent with every geometric
// step.
package transform

import (
	"image"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/menta2k/yolo-dataset-builder/pkg/augment"
	"github.com/menta2k/yolo-dataset-builder/pkg/boxcodec"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Sample is the working state threaded through the steps of a pipeline
type Sample struct {
	Image   *image.NRGBA
	Boxes   []types.CornerBox
	Classes []int
}

// Size returns the current pixel dimensions of the sample
func (s *Sample) Size() (int, int) {
	b := s.Image.Bounds()
	return b.Dx(), b.Dy()
}

// clip clamps boxes to the frame and drops those thinner than minSize pixels
func (s *Sample) clip(minSize float64) {
	w, h := s.Size()
	boxes := s.Boxes[:0]
	classes := s.Classes[:0]
	for i, b := range s.Boxes {
		c := boxcodec.Clip(b, w, h)
		if c.Width() < minSize || c.Height() < minSize {
			continue
		}
		boxes = append(boxes, c)
		classes = append(classes, s.Classes[i])
	}
	s.Boxes = boxes
	s.Classes = classes
}

// Step is one randomized augmentation, applied with probability P
type Step struct {
	Name string
	P    float64
	// Geometric steps move pixels, so boxes are re-clipped after them.
	Geometric bool
	Apply     func(rng *rand.Rand, s *Sample) error
}

// Pipeline applies its steps in order, each one gated by its own probability.
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	rng   *rand.Rand
	steps []Step
	// MinBoxSize is the smallest side, in pixels, a box may keep after a geometric step.
	MinBoxSize float64
}

// NewPipeline creates a pipeline drawing every random decision from a source seeded with seed
func NewPipeline(seed int64, steps ...Step) *Pipeline {
	return &Pipeline{
		rng:        rand.New(rand.NewSource(seed)),
		steps:      steps,
		MinBoxSize: 1,
	}
}

// Steps returns the names of the configured steps
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name
	}
	return names
}

// Transform implements augment.Transformer. The input image and boxes are not modified.
func (p *Pipeline) Transform(img image.Image, boxes []types.CornerBox, classes []int) (augment.Result, error) {
	if len(boxes) != len(classes) {
		return augment.Result{}, errors.Errorf("transform: %d boxes but %d class labels", len(boxes), len(classes))
	}
	s := &Sample{
		Image:   imaging.Clone(img),
		Boxes:   append([]types.CornerBox(nil), boxes...),
		Classes: append([]int(nil), classes...),
	}

	for _, step := range p.steps {
		if p.rng.Float64() >= step.P {
			continue
		}
		if err := step.Apply(p.rng, s); err != nil {
			return augment.Result{}, errors.Wrapf(err, "transform step %s", step.Name)
		}
		if step.Geometric {
			s.clip(p.MinBoxSize)
		}
	}
	s.clip(p.MinBoxSize)

	return augment.Result{Image: s.Image, Boxes: s.Boxes, Classes: s.Classes}, nil
}

// Default returns the standard augmentation pipeline. cropSize is the side of the
// random square crop; images not larger than it are never cropped.
func Default(seed int64, cropSize int) *Pipeline {
	return NewPipeline(seed,
		HorizontalFlip(0.5),
		BrightnessContrast(0.3, 20),
		Rotate(0.3, 10),
		RandomCrop(0.2, cropSize, cropSize),
		GaussNoise(0.2, 5, 15),
		SaturationGamma(0.3, 30, 0.2),
		MotionBlur(0.15),
		Scale(0.3, 0.95, 1.05),
		RandomShadow(0.2),
		RandomFog(0.15),
		Downscale(0.2, 0.5, 0.9),
		SigmoidContrast(0.2),
	)
}

// uniform returns a float in [lo, hi)
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

package transform

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"

	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// HorizontalFlip mirrors the image left to right
func HorizontalFlip(p float64) Step {
	return Step{Name: "horizontal_flip", P: p, Geometric: true, Apply: func(_ *rand.Rand, s *Sample) error {
		w, _ := s.Size()
		s.Image = imaging.FlipH(s.Image)
		for i, b := range s.Boxes {
			s.Boxes[i] = types.CornerBox{XMin: float64(w) - b.XMax, YMin: b.YMin, XMax: float64(w) - b.XMin, YMax: b.YMax}
		}
		return nil
	}}
}

// BrightnessContrast shifts brightness and contrast by up to limit percent each
func BrightnessContrast(p, limit float64) Step {
	return Step{Name: "brightness_contrast", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		s.Image = imaging.AdjustBrightness(s.Image, uniform(rng, -limit, limit))
		s.Image = imaging.AdjustContrast(s.Image, uniform(rng, -limit, limit))
		return nil
	}}
}

// Rotate turns the image by up to limit degrees either way, keeping its size. Corners
// uncovered by the rotation are filled with black.
func Rotate(p, limit float64) Step {
	return Step{Name: "rotate", P: p, Geometric: true, Apply: func(rng *rand.Rand, s *Sample) error {
		rotate(s, uniform(rng, -limit, limit))
		return nil
	}}
}

func rotate(s *Sample, angle float64) {
	w, h := s.Size()
	rotated := imaging.Rotate(s.Image, angle, color.Black)
	rw, rh := rotated.Bounds().Dx(), rotated.Bounds().Dy()

	// imaging.Rotate grows the canvas; crop back to the centered source frame.
	ox, oy := maxInt(0, (rw-w)/2), maxInt(0, (rh-h)/2)
	s.Image = imaging.CropCenter(rotated, w, h)
	for i, b := range s.Boxes {
		r := rotateBox(b, angle, w, h, rw, rh)
		s.Boxes[i] = types.CornerBox{
			XMin: r.XMin - float64(ox),
			YMin: r.YMin - float64(oy),
			XMax: r.XMax - float64(ox),
			YMax: r.YMax - float64(oy),
		}
	}
}

// rotateBox maps a box of a srcW x srcH image rotated counter-clockwise by angle degrees
// onto the dstW x dstH canvas, returning the axis-aligned hull of its corners.
func rotateBox(b types.CornerBox, angle float64, srcW, srcH, dstW, dstH int) types.CornerBox {
	sin, cos := math.Sincos(math.Pi * angle / 180)
	scx, scy := float64(srcW)/2, float64(srcH)/2
	dcx, dcy := float64(dstW)/2, float64(dstH)/2

	out := types.CornerBox{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	for _, pt := range [4][2]float64{{b.XMin, b.YMin}, {b.XMax, b.YMin}, {b.XMin, b.YMax}, {b.XMax, b.YMax}} {
		dx, dy := pt[0]-scx, pt[1]-scy
		x := dx*cos + dy*sin + dcx
		y := -dx*sin + dy*cos + dcy
		out.XMin = math.Min(out.XMin, x)
		out.YMin = math.Min(out.YMin, y)
		out.XMax = math.Max(out.XMax, x)
		out.YMax = math.Max(out.YMax, y)
	}
	return out
}

// RandomCrop cuts a width x height window at a random position. Images not larger than
// the window are left alone.
func RandomCrop(p float64, width, height int) Step {
	return Step{Name: "random_crop", P: p, Geometric: true, Apply: func(rng *rand.Rand, s *Sample) error {
		w, h := s.Size()
		if width <= 0 || height <= 0 || w <= width || h <= height {
			return nil
		}
		x0, y0 := rng.Intn(w-width+1), rng.Intn(h-height+1)
		s.Image = imaging.Crop(s.Image, image.Rect(x0, y0, x0+width, y0+height))
		for i, b := range s.Boxes {
			s.Boxes[i] = types.CornerBox{
				XMin: b.XMin - float64(x0),
				YMin: b.YMin - float64(y0),
				XMax: b.XMax - float64(x0),
				YMax: b.YMax - float64(y0),
			}
		}
		return nil
	}}
}

// GaussNoise adds per-channel gaussian noise with a standard deviation drawn from [minSigma, maxSigma)
func GaussNoise(p, minSigma, maxSigma float64) Step {
	return Step{Name: "gauss_noise", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		sigma := uniform(rng, minSigma, maxSigma)
		img := s.Image
		for y := 0; y < img.Rect.Dy(); y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
			for i := 0; i < len(row); i += 4 {
				for c := 0; c < 3; c++ {
					row[i+c] = clampUint8(float64(row[i+c]) + rng.NormFloat64()*sigma)
				}
			}
		}
		return nil
	}}
}

// SaturationGamma shifts saturation by up to satLimit percent and gamma by up to gammaLimit
func SaturationGamma(p, satLimit, gammaLimit float64) Step {
	return Step{Name: "saturation_gamma", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		s.Image = imaging.AdjustSaturation(s.Image, uniform(rng, -satLimit, satLimit))
		s.Image = imaging.AdjustGamma(s.Image, uniform(rng, 1-gammaLimit, 1+gammaLimit))
		return nil
	}}
}

// MotionBlur smears the image along a random horizontal or vertical line of 3 or 5 pixels
func MotionBlur(p float64) Step {
	return Step{Name: "motion_blur", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		var kernel [25]float64
		length := 3 + 2*rng.Intn(2)
		vertical := rng.Intn(2) == 1
		for k := 2 - length/2; k <= 2+length/2; k++ {
			if vertical {
				kernel[k*5+2] = 1
			} else {
				kernel[2*5+k] = 1
			}
		}
		s.Image = imaging.Convolve5x5(s.Image, kernel, &imaging.ConvolveOptions{Normalize: true})
		return nil
	}}
}

// Scale resizes the image by a factor drawn from [lo, hi)
func Scale(p, lo, hi float64) Step {
	return Step{Name: "scale", P: p, Geometric: true, Apply: func(rng *rand.Rand, s *Sample) error {
		w, h := s.Size()
		f := uniform(rng, lo, hi)
		nw := maxInt(1, int(math.Round(float64(w)*f)))
		nh := maxInt(1, int(math.Round(float64(h)*f)))
		s.Image = imaging.Resize(s.Image, nw, nh, imaging.Linear)
		sx, sy := float64(nw)/float64(w), float64(nh)/float64(h)
		for i, b := range s.Boxes {
			s.Boxes[i] = types.CornerBox{XMin: b.XMin * sx, YMin: b.YMin * sy, XMax: b.XMax * sx, YMax: b.YMax * sy}
		}
		return nil
	}}
}

// RandomShadow darkens a random rectangle of the image
func RandomShadow(p float64) Step {
	return Step{Name: "random_shadow", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		w, h := s.Size()
		rw := maxInt(1, int(float64(w)*uniform(rng, 0.2, 0.6)))
		rh := maxInt(1, int(float64(h)*uniform(rng, 0.2, 0.6)))
		pos := image.Pt(rng.Intn(w-rw+1), rng.Intn(h-rh+1))
		shadow := imaging.New(rw, rh, color.NRGBA{0, 0, 0, 255})
		s.Image = imaging.Overlay(s.Image, shadow, pos, uniform(rng, 0.3, 0.5))
		return nil
	}}
}

// RandomFog washes the image out with a slightly blurred light haze
func RandomFog(p float64) Step {
	return Step{Name: "random_fog", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		w, h := s.Size()
		fog := imaging.New(w, h, color.NRGBA{220, 220, 220, 255})
		s.Image = imaging.Overlay(imaging.Blur(s.Image, 0.8), fog, image.Pt(0, 0), uniform(rng, 0.1, 0.3))
		return nil
	}}
}

// Downscale degrades resolution by shrinking with a factor in [lo, hi) and scaling back up
func Downscale(p, lo, hi float64) Step {
	return Step{Name: "downscale", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		w, h := s.Size()
		f := uniform(rng, lo, hi)
		small := imaging.Resize(s.Image, maxInt(1, int(float64(w)*f)), maxInt(1, int(float64(h)*f)), imaging.NearestNeighbor)
		s.Image = imaging.Resize(small, w, h, imaging.Linear)
		return nil
	}}
}

// SigmoidContrast boosts local contrast around the mid tones
func SigmoidContrast(p float64) Step {
	return Step{Name: "sigmoid_contrast", P: p, Apply: func(rng *rand.Rand, s *Sample) error {
		s.Image = imaging.AdjustSigmoid(s.Image, 0.5, uniform(rng, 2, 6))
		return nil
	}}
}

func clampUint8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

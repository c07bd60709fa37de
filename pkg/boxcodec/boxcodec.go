// Package boxcodec converts bounding boxes between the YOLO normalized-center form and
// the Pascal-VOC absolute-corner form.
//
// ToNormalizedCenter divides by the image dimensions it is given. After a spatial
// transform (crop, resize, rotate) those must be the dimensions of the transformed image,
// not of the source.
package boxcodec

import (
	"math"

	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// ToAbsoluteCorners converts a normalized-center box to pixel corners for an image of
// imgW x imgH pixels. The result is not clamped and may extend past the image.
func ToAbsoluteCorners(box types.NormalizedBox, imgW, imgH int) types.CornerBox {
	w, h := float64(imgW), float64(imgH)
	x := box.XCenter * w
	y := box.YCenter * h
	halfW := box.Width * w / 2
	halfH := box.Height * h / 2
	return types.CornerBox{
		XMin: x - halfW,
		YMin: y - halfH,
		XMax: x + halfW,
		YMax: y + halfH,
	}
}

// ToNormalizedCenter converts pixel corners back to a normalized-center box relative to
// an image of imgW x imgH pixels.
func ToNormalizedCenter(box types.CornerBox, imgW, imgH int) types.NormalizedBox {
	w, h := float64(imgW), float64(imgH)
	return types.NormalizedBox{
		XCenter: (box.XMin + box.XMax) / 2 / w,
		YCenter: (box.YMin + box.YMax) / 2 / h,
		Width:   (box.XMax - box.XMin) / w,
		Height:  (box.YMax - box.YMin) / h,
	}
}

// ToAbsoluteCornersAll converts every box with the same image dimensions
func ToAbsoluteCornersAll(boxes []types.NormalizedBox, imgW, imgH int) []types.CornerBox {
	out := make([]types.CornerBox, len(boxes))
	for i, b := range boxes {
		out[i] = ToAbsoluteCorners(b, imgW, imgH)
	}
	return out
}

// ToNormalizedCenterAll converts every box with the same image dimensions
func ToNormalizedCenterAll(boxes []types.CornerBox, imgW, imgH int) []types.NormalizedBox {
	out := make([]types.NormalizedBox, len(boxes))
	for i, b := range boxes {
		out[i] = ToNormalizedCenter(b, imgW, imgH)
	}
	return out
}

// Clip clamps the corners of box to the [0,imgW]x[0,imgH] frame. A box lying entirely
// outside the frame collapses to zero area and fails Valid.
func Clip(box types.CornerBox, imgW, imgH int) types.CornerBox {
	w, h := float64(imgW), float64(imgH)
	return types.CornerBox{
		XMin: clamp(box.XMin, 0, w),
		YMin: clamp(box.YMin, 0, h),
		XMax: clamp(box.XMax, 0, w),
		YMax: clamp(box.YMax, 0, h),
	}
}

// Valid reports whether a normalized box lies inside the unit square with positive size
func Valid(box types.NormalizedBox) bool {
	for _, v := range []float64{box.XCenter, box.YCenter, box.Width, box.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if box.Width <= 0 || box.Height <= 0 || box.Width > 1 || box.Height > 1 {
		return false
	}
	return box.XCenter > 0 && box.XCenter < 1 && box.YCenter > 0 && box.YCenter < 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

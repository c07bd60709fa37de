package processing

import (
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/boxcodec"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Processor handles image loading, encoding and annotation overlays
type Processor struct {
	Quality  int
	Lossless bool
}

// NewProcessor creates a new image processor with JPEG/WebP quality 95
func NewProcessor() *Processor {
	return &Processor{Quality: 95}
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image")
	}
	defer f.Close()

	if strings.EqualFold(utils.GetFileExtension(path), "webp") {
		if img, err := webp.Decode(f); err == nil {
			return img, nil
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, errors.Errorf("image: unknown format for %s", path)
}

// Dimensions returns the pixel width and height of img
func Dimensions(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// FormatFromPath returns the output format implied by the file extension, "jpg" by default
func FormatFromPath(path string) string {
	switch ext := utils.GetFileExtension(path); ext {
	case "png", "webp":
		return ext
	}
	return "jpg"
}

// Encode writes img to w in the given format (jpg, png or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: p.Lossless, Quality: float32(p.Quality)})
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "jpg", "jpeg", "":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(p.Quality))
	}
	return errors.Errorf("unsupported output format: %s", format)
}

// SaveImage encodes img to path in the format implied by its extension. The file only
// appears once completely written.
func (p *Processor) SaveImage(img image.Image, path string) error {
	format := FormatFromPath(path)
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return p.Encode(w, img, format)
	})
}

var palette = []color.NRGBA{
	{0, 255, 0, 255},
	{255, 204, 0, 255},
	{255, 0, 0, 255},
	{0, 170, 255, 255},
	{255, 0, 255, 255},
	{0, 255, 255, 255},
	{255, 128, 0, 255},
	{128, 0, 255, 255},
}

// ClassColor returns a stable overlay color for classID
func ClassColor(classID int) color.NRGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// DrawAnnotations draws every box of record on a copy of img, each with its class name
func (p *Processor) DrawAnnotations(img image.Image, record types.LabelRecord, classNames []string) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w, h := Dimensions(nrgba)
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side

	for _, a := range record.Annotations {
		c := ClassColor(a.ClassID)
		corners := boxcodec.Clip(boxcodec.ToAbsoluteCorners(a.Box, w, h), w, h)
		if !corners.Valid() {
			continue
		}
		x0, y0, x1, y1 := boxToPixels(corners)
		drawBox(nrgba, x0, y0, x1, y1, c, stroke)
		drawLabel(nrgba, x0+stroke, y0+stroke, labels.ClassName(classNames, a.ClassID), c)
	}
	return nrgba
}

func drawLabel(img *image.NRGBA, x, y int, text string, c color.NRGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func boxToPixels(box types.CornerBox) (int, int, int, int) {
	x0 := int(box.XMin + 0.5)
	y0 := int(box.YMin + 0.5)
	x1 := int(box.XMax + 0.5)
	y1 := int(box.YMax + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return x0, y0, x1, y1
}

func drawBox(img *image.NRGBA, x0, y0, x1, y1 int, color color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, color)
		drawHLine(img, y1-1-s, x0, x1, color)
		drawVLine(img, x0+s, y0, y1, color)
		drawVLine(img, x1-1-s, y0, y1, color)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}

// Command preview draws the labelled boxes over images for visual inspection.
package main

import (
	"flag"
	"fmt"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
)

func main() {
	common := cli.RegisterFlags()
	var images, labels string
	var limit int
	var augmented bool
	flag.StringVar(&images, "images", "", "images directory (default: original images)")
	flag.StringVar(&labels, "labels", "", "labels directory (default: original labels)")
	flag.BoolVar(&augmented, "augmented", false, "preview the augmented samples")
	flag.IntVar(&limit, "n", 20, "maximum number of images to render (0: all)")
	flag.Parse()

	b, _ := common.Builder()
	l := b.Layout()
	if images == "" {
		images = l.Images
		if augmented {
			images = l.AugmentedImages
		}
	}
	if labels == "" {
		labels = l.Labels
		if augmented {
			labels = l.AugmentedLabels
		}
	}

	paths, err := b.Preview(images, labels, limit)
	if err != nil {
		cli.Fail(err)
	}
	fmt.Printf("wrote %d previews to %s\n", len(paths), l.Debug)
	cli.Exit(cli.ExitOK)
}

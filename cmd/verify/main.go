// Command verify reports images without a label and labels without an image.
package main

import (
	"flag"
	"fmt"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/pkg/integrity"
)

func main() {
	common := cli.RegisterFlags()
	var images, labels string
	var original bool
	flag.StringVar(&images, "images", "", "images directory (default: final dataset)")
	flag.StringVar(&labels, "labels", "", "labels directory (default: final dataset)")
	flag.BoolVar(&original, "original", false, "check the original images/labels instead of the final dataset")
	flag.Parse()

	b, _ := common.Builder()
	l := b.Layout()
	if images == "" {
		images = l.FinalImages
		if original {
			images = l.Images
		}
	}
	if labels == "" {
		labels = l.FinalLabels
		if original {
			labels = l.Labels
		}
	}

	mismatches, err := b.Verify(images, labels)
	if err != nil {
		cli.Fail(err)
	}
	if len(mismatches) == 0 {
		fmt.Printf("%s and %s are perfectly paired\n", images, labels)
		cli.Exit(cli.ExitOK)
	}
	fmt.Print(integrity.Describe(mismatches))
	cli.Exit(cli.ExitIntegrity)
}

// Command countclasses prints how many boxes and images each class has and which
// classes are below their target.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/pkg/report"
)

func main() {
	common := cli.RegisterFlags()
	var target int
	flag.IntVar(&target, "target", 0, "list classes with fewer images than this (0: augment.target from the configuration)")
	flag.Parse()

	b, cfg := common.Builder()
	if target <= 0 {
		target = cfg.Augment.Target
	}

	dist, err := b.Count()
	if err != nil {
		cli.Fail(err)
	}
	if err := dist.Write(os.Stdout); err != nil {
		cli.Fail(err)
	}

	names, err := b.ClassNames()
	if err != nil {
		cli.Fail(err)
	}
	images := make(map[int]int, len(dist.Rows))
	for _, row := range dist.Rows {
		images[row.ClassID] = row.Images
	}
	fmt.Printf("\nbelow %d images:\n", target)
	if err := report.WriteShortfall(os.Stdout, report.Shortfall(images, target), names); err != nil {
		cli.Fail(err)
	}
	cli.Exit(cli.ExitOK)
}

// Command planaugment lists the single-class images of every class below its target and
// writes them to the augmentation plan file.
package main

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
)

func main() {
	common := cli.RegisterFlags()
	flag.Parse()

	b, _ := common.Builder()
	plan, err := b.Plan()
	if err != nil {
		cli.Fail(err)
	}
	names, err := b.ClassNames()
	if err != nil {
		cli.Fail(err)
	}

	for _, e := range plan.Entries {
		fmt.Printf("%d: %s → %d source images, %s to generate\n",
			e.ClassID, labels.ClassName(names, e.ClassID), len(e.Bases), humanize.Comma(int64(e.Deficit)))
	}
	fmt.Printf("plan written to %s (%s samples)\n", b.Layout().Plan, humanize.Comma(int64(plan.TotalDeficit())))
	cli.Exit(cli.ExitOK)
}

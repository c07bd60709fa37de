// Command rescueclass tops up one class from every image that contains it, including
// images holding other classes too.
package main

import (
	"flag"
	"os"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
)

func main() {
	common := cli.RegisterFlags()
	var classID, target int
	flag.IntVar(&classID, "class", -1, "class id to rescue")
	flag.IntVar(&target, "target", 0, "desired number of samples (0: configured target)")
	flag.Parse()

	if classID < 0 {
		cli.Fatalf("usage: rescueclass -class N [-target 500] [-root crop_data]")
	}
	b, cfg := common.Builder()
	if target <= 0 {
		target = cfg.Augment.Target
		if t, ok := cfg.Augment.Quotas[classID]; ok {
			target = t
		}
	}

	summary, err := b.Rescue(classID, target)
	names, _ := b.ClassNames()
	if summary != nil {
		_ = summary.Write(os.Stdout, names)
	}
	if err != nil {
		cli.Fail(err)
	}
	if len(summary.Aborted()) > 0 {
		cli.Exit(cli.ExitAborted)
	}
	cli.Exit(cli.ExitOK)
}

// Command augment generates synthetic samples for the classes of the augmentation plan.
package main

import (
	"flag"
	"os"

	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/planner"
)

func main() {
	common := cli.RegisterFlags()
	var replan bool
	flag.BoolVar(&replan, "replan", false, "rebuild the plan from the dataset instead of reading the plan file")
	flag.Parse()

	b, _ := common.Builder()

	var plan *planner.Plan
	var err error
	if replan || !utils.FileExists(b.Layout().Plan) {
		klog.Infof("building plan %s", b.Layout().Plan)
		plan, err = b.Plan()
	} else {
		plan, err = b.LoadPlan()
	}
	if err != nil {
		cli.Fail(err)
	}

	summary, err := b.Augment(plan)
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

// Command merge copies the original and augmented pairs into the final dataset.
package main

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/internal/utils"
)

func main() {
	common := cli.RegisterFlags()
	var keep bool
	flag.BoolVar(&keep, "keep-existing", false, "add to the final dataset instead of rebuilding it")
	flag.Parse()

	b, cfg := common.Builder()
	if keep {
		cfg.Merge.KeepExisting = true
	}
	stats, err := b.Merge()
	if err != nil {
		cli.Fail(err)
	}
	fmt.Printf("merged %s images and %s labels (%s) into %s\n",
		humanize.Comma(int64(stats.Images)), humanize.Comma(int64(stats.Labels)), utils.FormatFileSize(stats.Bytes), b.Layout().FinalImages)
	if stats.Overwritten > 0 || stats.Replaced > 0 {
		fmt.Printf("%d files overwritten by a later source, %d files replaced from a previous merge\n", stats.Overwritten, stats.Replaced)
	}
	cli.Exit(cli.ExitOK)
}

// Command split partitions the final dataset into train/valid/test and writes data.yaml.
package main

import (
	"flag"
	"fmt"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
)

func main() {
	common := cli.RegisterFlags()
	flag.Parse()

	b, _ := common.Builder()
	out, err := b.Split()
	if err != nil {
		cli.Fail(err)
	}
	fmt.Printf("train=%d valid=%d test=%d\nmanifest: %s\n",
		len(out.Result.Train), len(out.Result.Valid), len(out.Result.Test), b.Layout().Manifest)
	cli.Exit(cli.ExitOK)
}

// Command extractclass copies every image/label pair containing a class into its own
// directory.
package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/menta2k/yolo-dataset-builder/internal/cli"
)

func main() {
	common := cli.RegisterFlags()
	var classID int
	var out string
	flag.IntVar(&classID, "class", -1, "class id to extract")
	flag.StringVar(&out, "out", "", "output directory (default: <root>/class_<id>)")
	flag.Parse()

	if classID < 0 {
		cli.Fatalf("usage: extractclass -class N [-out dir] [-root crop_data]")
	}
	b, _ := common.Builder()
	if out == "" {
		out = filepath.Join(b.Layout().Root, fmt.Sprintf("class_%d", classID))
	}

	n, err := b.Extract(classID, out)
	if err != nil {
		cli.Fail(err)
	}
	fmt.Printf("copied %d pairs of class %d to %s\n", n, classID, out)
	cli.Exit(cli.ExitOK)
}

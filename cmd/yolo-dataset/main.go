// Command yolo-dataset runs the whole preparation pipeline: plan, augment, merge and
// split.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	yolodataset "github.com/menta2k/yolo-dataset-builder"
	"github.com/menta2k/yolo-dataset-builder/internal/cli"
	"github.com/menta2k/yolo-dataset-builder/internal/config"
)

func main() {
	common := cli.RegisterFlags()
	var version, writeConfig bool
	flag.BoolVar(&version, "version", false, "print the version and exit")
	flag.BoolVar(&writeConfig, "write-config", false, "write the effective configuration to -config (or the default path) and exit")
	flag.Parse()

	if version {
		fmt.Println(yolodataset.Version)
		cli.Exit(cli.ExitOK)
	}

	b, cfg := common.Builder()
	if writeConfig {
		path := common.ConfigPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			cli.Fail(err)
		}
		fmt.Printf("wrote %s\n", path)
		cli.Exit(cli.ExitOK)
	}

	rep, err := b.Run()
	names, _ := b.ClassNames()
	if rep.Augment != nil {
		_ = rep.Augment.Write(os.Stdout, names)
	}
	if err != nil {
		cli.Fail(err)
	}
	fmt.Printf("merged %s images, split train=%d valid=%d test=%d, manifest %s\n",
		humanize.Comma(int64(rep.Merge.Images)),
		len(rep.Split.Result.Train), len(rep.Split.Result.Valid), len(rep.Split.Result.Test),
		b.Layout().Manifest)
	cli.Exit(rep.ExitCode())
}

// Package cli holds what every command shares: flags, configuration loading, progress
// bars and exit codes.
package cli

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"

	yolodataset "github.com/menta2k/yolo-dataset-builder"
	"github.com/menta2k/yolo-dataset-builder/internal/config"
	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/augment"
	"github.com/menta2k/yolo-dataset-builder/pkg/integrity"
)

// Process exit codes
const (
	ExitOK        = 0
	ExitAborted   = 1 // at least one class could not reach its target
	ExitIntegrity = 2 // unpaired images or labels
	ExitFatal     = 3 // configuration or write error
)

// Common are the flags shared by all commands
type Common struct {
	ConfigPath string
	Root       string
	Quiet      bool
}

// RegisterFlags registers the klog flags and the common flags on the default flag set
func RegisterFlags() *Common {
	klog.InitFlags(nil)
	c := &Common{}
	flag.StringVar(&c.ConfigPath, "config", "", "JSON configuration file (default: "+config.GetConfigPath()+" if present)")
	flag.StringVar(&c.Root, "root", "", "dataset root directory, overrides paths.root and "+config.EnvRoot)
	flag.BoolVar(&c.Quiet, "quiet", false, "hide progress bars")
	return c
}

// Load reads .env, the configuration file and the environment, then applies the flags
func (c *Common) Load() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		klog.Warningf("failed to load .env: %v", err)
	}

	cfg := config.Default()
	path := c.ConfigPath
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		klog.V(1).Infof("loaded configuration from %s", path)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if c.Root != "" {
		cfg.Paths.Root = c.Root
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	return cfg, nil
}

// NewProgress returns a progress bar for total items on stderr, silent when quiet
func (c *Common) NewProgress(description string, total int) *progressbar.ProgressBar {
	if c.Quiet {
		return progressbar.DefaultSilent(int64(total), description)
	}
	return progressbar.Default(int64(total), description)
}

// Builder loads the configuration and returns a Builder reporting progress on stderr.
// Any failure ends the process.
func (c *Common) Builder() (*yolodataset.Builder, *config.Config) {
	cfg, err := c.Load()
	if err != nil {
		Fail(err)
	}
	b, err := yolodataset.New(cfg)
	if err != nil {
		Fail(err)
	}
	b.SetProgress(func(description string, total int) yolodataset.Progress {
		return c.NewProgress(description, total)
	})
	return b, cfg
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var missing *integrity.MissingPairError
	if errors.As(err, &missing) {
		return ExitIntegrity
	}
	var aborted *augment.ClassAugmentationAborted
	if errors.As(err, &aborted) {
		return ExitAborted
	}
	return ExitFatal
}

// Exit flushes the logs and terminates the process
func Exit(code int) {
	klog.Flush()
	os.Exit(code)
}

// Fail logs err and exits with its exit code
func Fail(err error) {
	klog.ErrorDepth(1, err)
	Exit(ExitCode(err))
}

// Fatalf logs a fatal message and exits with ExitFatal
func Fatalf(format string, args ...interface{}) {
	klog.ErrorDepth(1, errors.Errorf(format, args...))
	Exit(ExitFatal)
}

package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/assembler"
	"github.com/menta2k/yolo-dataset-builder/pkg/augment"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Environment variables overriding the configuration
const (
	EnvRoot   = "YOLODS_ROOT"
	EnvSeed   = "YOLODS_SEED"
	EnvTarget = "YOLODS_TARGET"
)

// Config holds the application configuration
type Config struct {
	Paths   PathsConfig   `json:"paths"`
	Augment AugmentConfig `json:"augment"`
	Split   SplitConfig   `json:"split"`
	Merge   MergeConfig   `json:"merge"`
	Output  OutputConfig  `json:"output"`
}

// PathsConfig holds the dataset layout. Relative entries live under Root.
type PathsConfig struct {
	Root      string `json:"root"`
	Images    string `json:"images"`
	Labels    string `json:"labels"`
	Classes   string `json:"classes"`
	Plan      string `json:"plan"`
	Augmented string `json:"augmented"`
	Final     string `json:"final"`
	Splits    string `json:"splits"`
	Debug     string `json:"debug"`
}

// AugmentConfig holds configuration for planning and generating synthetic samples
type AugmentConfig struct {
	// Target is the sample count every class is brought up to.
	Target int `json:"target"`
	// Quotas overrides Target for individual classes.
	Quotas map[int]int `json:"quotas,omitempty"`
	// Classes restricts augmentation to these class ids; empty means every class.
	Classes []int `json:"classes,omitempty"`

	Seed          int64  `json:"seed"`
	FailureBudget int    `json:"failure_budget"`
	Overwrite     string `json:"overwrite"`
	CropSize      int    `json:"crop_size"`

	// AcknowledgeMismatches lets augmentation and split run on the valid pairs of an
	// unpaired dataset instead of stopping.
	AcknowledgeMismatches bool `json:"acknowledge_mismatches"`
}

// SplitConfig holds the train/valid/test partition settings
type SplitConfig struct {
	Train float64 `json:"train"`
	Valid float64 `json:"valid"`
	Test  float64 `json:"test"`
	Seed  int64   `json:"seed"`
}

// MergeConfig holds configuration for assembling the final dataset
type MergeConfig struct {
	// KeepExisting adds to the final dataset instead of rebuilding it, leaving files of
	// earlier merges in place.
	KeepExisting bool `json:"keep_existing"`
}

// OutputConfig holds configuration for written images
type OutputConfig struct {
	ImageExt string `json:"image_ext"`
	LabelExt string `json:"label_ext"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

// Layout is the set of resolved dataset paths
type Layout struct {
	Root            string
	Images          string
	Labels          string
	Classes         string
	Plan            string
	AugmentedImages string
	AugmentedLabels string
	FinalImages     string
	FinalLabels     string
	Splits          string
	Manifest        string
	Debug           string
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:      "crop_data",
			Images:    "images",
			Labels:    "labels",
			Classes:   "classes.txt",
			Plan:      "augment_plan.txt",
			Augmented: "augmented",
			Final:     "final_dataset",
			Splits:    "splits",
			Debug:     "debug",
		},
		Augment: AugmentConfig{
			Target:        500,
			Seed:          42,
			FailureBudget: augment.DefaultFailureBudget,
			Overwrite:     augment.OverwriteRefuse.String(),
			CropSize:      256,
		},
		Split: SplitConfig{
			Train: assembler.DefaultRatios.Train,
			Valid: assembler.DefaultRatios.Valid,
			Test:  assembler.DefaultRatios.Test,
			Seed:  42,
		},
		Output: OutputConfig{
			ImageExt: ".jpg",
			LabelExt: ".txt",
			Quality:  95,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the file keep
// their default value.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	if err := utils.EnsureDir(filepath.Dir(filename)); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	return utils.WriteFileAtomic(filename, func(w io.Writer) error {
		_, err := w.Write(append(data, '\n'))
		return err
	})
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.Root == "" {
		return errors.New("paths.root cannot be empty")
	}
	for name, v := range map[string]string{
		"paths.images":    c.Paths.Images,
		"paths.labels":    c.Paths.Labels,
		"paths.augmented": c.Paths.Augmented,
		"paths.final":     c.Paths.Final,
		"paths.splits":    c.Paths.Splits,
	} {
		if v == "" {
			return errors.Errorf("%s cannot be empty", name)
		}
	}

	if c.Augment.Target < 0 {
		return errors.New("augment.target must not be negative")
	}
	for id, target := range c.Augment.Quotas {
		if id < 0 || target < 0 {
			return errors.Errorf("augment.quotas[%d] = %d is invalid", id, target)
		}
	}
	if c.Augment.FailureBudget < 1 {
		return errors.New("augment.failure_budget must be positive")
	}
	if _, err := augment.ParseOverwritePolicy(c.Augment.Overwrite); err != nil {
		return errors.WithMessage(err, "augment.overwrite")
	}
	if c.Augment.CropSize < 0 {
		return errors.New("augment.crop_size must not be negative")
	}

	if err := c.Ratios().Validate(); err != nil {
		return errors.WithMessage(err, "split")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return errors.New("output.quality must be between 1 and 100")
	}
	if !strings.HasPrefix(c.Output.ImageExt, ".") || !strings.HasPrefix(c.Output.LabelExt, ".") {
		return errors.New("output.image_ext and output.label_ext must start with a dot")
	}

	return nil
}

// ApplyEnv overrides the root, seeds and target from the environment
func (c *Config) ApplyEnv() error {
	if root := os.Getenv(EnvRoot); root != "" {
		c.Paths.Root = root
	}
	if v := os.Getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvSeed)
		}
		c.Augment.Seed = seed
		c.Split.Seed = seed
	}
	if v := os.Getenv(EnvTarget); v != "" {
		target, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", EnvTarget)
		}
		c.Augment.Target = target
	}
	return nil
}

// Resolve returns the dataset paths, with relative entries placed under the root
func (c *Config) Resolve() Layout {
	p := c.Paths
	at := func(rel string) string {
		if rel == "" || filepath.IsAbs(rel) {
			return rel
		}
		return filepath.Join(p.Root, rel)
	}
	augmented := at(p.Augmented)
	final := at(p.Final)
	splits := at(p.Splits)
	return Layout{
		Root:            p.Root,
		Images:          at(p.Images),
		Labels:          at(p.Labels),
		Classes:         at(p.Classes),
		Plan:            at(p.Plan),
		AugmentedImages: filepath.Join(augmented, "images"),
		AugmentedLabels: filepath.Join(augmented, "labels"),
		FinalImages:     filepath.Join(final, "images"),
		FinalLabels:     filepath.Join(final, "labels"),
		Splits:          splits,
		Manifest:        filepath.Join(splits, assembler.ManifestFile),
		Debug:           at(p.Debug),
	}
}

// Ratios returns the split ratios
func (c *Config) Ratios() assembler.Ratios {
	return assembler.Ratios{Train: c.Split.Train, Valid: c.Split.Valid, Test: c.Split.Test}
}

// OverwritePolicy returns the parsed augment.overwrite setting
func (c *Config) OverwritePolicy() augment.OverwritePolicy {
	p, _ := augment.ParseOverwritePolicy(c.Augment.Overwrite)
	return p
}

// Quotas returns the target of each class in classIDs, honoring per-class overrides and
// the augment.classes restriction.
func (c *Config) Quotas(classIDs []int) map[int]types.ClassQuota {
	allowed := make(map[int]bool, len(c.Augment.Classes))
	for _, id := range c.Augment.Classes {
		allowed[id] = true
	}
	quotas := make(map[int]types.ClassQuota, len(classIDs))
	for _, id := range classIDs {
		if len(allowed) > 0 && !allowed[id] {
			continue
		}
		target := c.Augment.Target
		if t, ok := c.Augment.Quotas[id]; ok {
			target = t
		}
		quotas[id] = types.ClassQuota{ClassID: id, Target: target}
	}
	return quotas
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "yolo-dataset", "config.json")
}

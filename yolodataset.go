// Package yolodataset builds balanced YOLO object-detection datasets.
//
// A Builder works on the directory layout described by a config.Config:
//
//	crop_data/
//	├── classes.txt          one class name per line, line index = class id
//	├── images/*.jpg         original images
//	├── labels/*.txt         YOLO labels: "class_id cx cy w h", normalized
//	├── augment_plan.txt     written by Plan
//	├── augmented/{images,labels}
//	├── final_dataset/{images,labels}
//	└── splits/{train,valid,test}/{images,labels} + data.yaml
//
// The stages run in order: Plan finds single-class images of every class below its
// target, Augment fills the deficits with synthetic samples, Merge combines originals
// and synthetic samples and Split partitions the result and writes the manifest.
// Augment and Split refuse unpaired directories unless mismatches are acknowledged in
// the configuration.
//
// Basic usage:
//
//	cfg := config.Default()
//	cfg.Paths.Root = "crop_data"
//
//	b, err := yolodataset.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report, err := b.Run()
//	if err != nil {
//		log.Fatal(err)
//	}
//	os.Exit(report.ExitCode())
package yolodataset

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/menta2k/yolo-dataset-builder/internal/config"
	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/assembler"
	"github.com/menta2k/yolo-dataset-builder/pkg/augment"
	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/integrity"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/planner"
	"github.com/menta2k/yolo-dataset-builder/pkg/processing"
	"github.com/menta2k/yolo-dataset-builder/pkg/report"
	"github.com/menta2k/yolo-dataset-builder/pkg/transform"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// Version of the dataset builder
const Version = "1.0.0"

// Progress is advanced once per processed item of a long stage
type Progress interface {
	Add(n int) error
	Finish() error
}

// ProgressFunc starts the progress display of a stage with total items
type ProgressFunc func(description string, total int) Progress

type nopProgress struct{}

func (nopProgress) Add(int) error { return nil }
func (nopProgress) Finish() error { return nil }

// Builder runs the dataset preparation stages
type Builder struct {
	cfg         *config.Config
	layout      config.Layout
	scanner     *dataset.Scanner
	checker     *integrity.Checker
	processor   *processing.Processor
	transformer augment.Transformer
	progress    ProgressFunc
}

// New creates a Builder for a validated configuration. The default transformer is the
// standard randomized pipeline seeded from the augment seed.
func New(cfg *config.Config) (*Builder, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	scanner := dataset.NewScannerWithExt(cfg.Output.ImageExt, cfg.Output.LabelExt)
	processor := processing.NewProcessor()
	processor.Quality = cfg.Output.Quality
	processor.Lossless = cfg.Output.Lossless

	return &Builder{
		cfg:         cfg,
		layout:      cfg.Resolve(),
		scanner:     scanner,
		checker:     integrity.NewWithScanner(scanner),
		processor:   processor,
		transformer: transform.Default(cfg.Augment.Seed, cfg.Augment.CropSize),
		progress:    func(string, int) Progress { return nopProgress{} },
	}, nil
}

// SetTransformer replaces the augmentation transformer
func (b *Builder) SetTransformer(t augment.Transformer) {
	b.transformer = t
}

// SetProgress installs a progress display for long stages
func (b *Builder) SetProgress(fn ProgressFunc) {
	if fn != nil {
		b.progress = fn
	}
}

// Layout returns the resolved dataset paths
func (b *Builder) Layout() config.Layout {
	return b.layout
}

// ClassNames loads classes.txt. A missing file yields no names; ids are then shown as
// "class N".
func (b *Builder) ClassNames() ([]string, error) {
	if !utils.FileExists(b.layout.Classes) {
		klog.Warningf("class names file %s not found", b.layout.Classes)
		return nil, nil
	}
	return labels.LoadClassNames(b.layout.Classes)
}

// pairedEntries scans a directory pair and returns its valid entries. Unpaired files
// stop the stage with a *integrity.MissingPairError unless acknowledged.
func (b *Builder) pairedEntries(imagesDir, labelsDir string) ([]types.DatasetEntry, error) {
	if err := b.checker.Check(imagesDir, labelsDir); err != nil {
		var missing *integrity.MissingPairError
		if !errors.As(err, &missing) || !b.cfg.Augment.AcknowledgeMismatches {
			return nil, err
		}
		klog.Warningf("continuing with valid pairs only: %v", err)
	}
	index, err := b.scanner.Scan(imagesDir, labelsDir)
	if err != nil {
		return nil, err
	}
	return index.Valid(), nil
}

// Count reports the class distribution of the original labels
func (b *Builder) Count() (report.DistributionReport, error) {
	names, err := b.ClassNames()
	if err != nil {
		return report.DistributionReport{}, err
	}
	index, err := b.scanner.Scan(b.layout.Images, b.layout.Labels)
	if err != nil {
		return report.DistributionReport{}, err
	}
	counts, _ := dataset.CountInstances(index.Valid())
	return report.Distribution(counts, names), nil
}

// Plan classifies the original dataset and writes the augmentation plan file
func (b *Builder) Plan() (*planner.Plan, error) {
	names, err := b.ClassNames()
	if err != nil {
		return nil, err
	}
	entries, err := b.pairedEntries(b.layout.Images, b.layout.Labels)
	if err != nil {
		return nil, err
	}
	index, errs := dataset.ClassifySingleClass(entries)
	if len(errs) > 0 {
		klog.Warningf("%d label files could not be parsed and were excluded", len(errs))
	}

	plan := planner.BuildPlan(index, b.cfg.Quotas(knownClasses(index, names)))
	if err := planner.SavePlan(b.layout.Plan, plan, names); err != nil {
		return nil, err
	}
	klog.Infof("wrote plan for %d classes (%d samples to generate) to %s", len(plan.Entries), plan.TotalDeficit(), b.layout.Plan)
	return plan, nil
}

// knownClasses lists every class id named in classes.txt or seen in the index
func knownClasses(index dataset.ClassIndex, names []string) []int {
	seen := make(map[int]bool)
	var ids []int
	for i := range names {
		seen[i] = true
		ids = append(ids, i)
	}
	for _, id := range index.ClassIDs() {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// LoadPlan reads the plan file written by Plan, recomputing deficits from the current
// quotas.
func (b *Builder) LoadPlan() (*planner.Plan, error) {
	names, err := b.ClassNames()
	if err != nil {
		return nil, err
	}
	index, err := planner.LoadIndex(b.layout.Plan)
	if err != nil {
		return nil, err
	}
	return planner.BuildPlan(index, b.cfg.Quotas(knownClasses(index, names))), nil
}

// Augment generates the synthetic samples of every plan entry into the augmented
// directories. Classes that had to be abandoned are recorded in the summary and do not
// stop the run; a write failure does.
func (b *Builder) Augment(plan *planner.Plan) (*report.AugmentSummary, error) {
	if _, err := b.pairedEntries(b.layout.Images, b.layout.Labels); err != nil {
		return nil, err
	}
	summary := &report.AugmentSummary{RunID: uuid.NewString()}
	bar := b.progress("augmenting", plan.TotalDeficit())
	defer bar.Finish()

	engine, err := b.newEngine(summary, bar)
	if err != nil {
		return summary, err
	}
	klog.Infof("augmentation run %s: %d classes, %d samples", summary.RunID, len(plan.Entries), plan.TotalDeficit())
	for _, entry := range plan.Entries {
		outcome, err := b.generate(engine, entry, entry.Deficit)
		summary.Add(outcome)
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// Rescue brings classID up to target using every image that contains it, whatever else
// the image holds. Only the boxes of classID are kept in the synthetic labels.
func (b *Builder) Rescue(classID, target int) (*report.AugmentSummary, error) {
	entries, err := b.pairedEntries(b.layout.Images, b.layout.Labels)
	if err != nil {
		return nil, err
	}
	bases, errs := dataset.ClassifyContaining(entries, classID)
	if len(errs) > 0 {
		klog.Warningf("%d label files could not be parsed and were excluded", len(errs))
	}
	quota := types.ClassQuota{ClassID: classID, Current: len(bases), Target: target}
	klog.Infof("class %d: found %d images, need %d more samples", classID, len(bases), quota.Deficit())

	summary := &report.AugmentSummary{RunID: uuid.NewString()}
	bar := b.progress("rescuing", quota.Deficit())
	defer bar.Finish()

	engine, err := b.newEngine(summary, bar)
	if err != nil {
		return summary, err
	}
	entry := types.PlanEntry{ClassID: classID, Bases: bases, Deficit: quota.Deficit()}
	outcome, err := b.generate(engine, entry, quota.Deficit())
	summary.Add(outcome)
	return summary, err
}

func (b *Builder) newEngine(summary *report.AugmentSummary, bar Progress) (*augment.Engine, error) {
	return augment.NewEngine(b.transformer, b.processor, augment.Options{
		ImagesDir:     b.layout.AugmentedImages,
		LabelsDir:     b.layout.AugmentedLabels,
		ImageExt:      b.cfg.Output.ImageExt,
		LabelExt:      b.cfg.Output.LabelExt,
		Seed:          b.cfg.Augment.Seed,
		FailureBudget: b.cfg.Augment.FailureBudget,
		Overwrite:     b.cfg.OverwritePolicy(),
		OnSample: func(s types.SyntheticSample) {
			_ = bar.Add(1)
			for _, path := range []string{s.ImagePath, s.LabelPath} {
				if info, err := os.Stat(path); err == nil {
					summary.Bytes += info.Size()
				}
			}
		},
	})
}

// generate runs the engine for one class and turns an abort into an outcome
func (b *Builder) generate(engine *augment.Engine, entry types.PlanEntry, target int) (report.ClassOutcome, error) {
	outcome := report.ClassOutcome{ClassID: entry.ClassID, Requested: target}
	if n := len(entry.Bases); n > 0 && n < target {
		klog.Warningf("class %d: %d source images for %d samples, expect near-duplicates", entry.ClassID, n, target)
	}

	samples, err := engine.Generate(entry, entry.ClassID, b.layout.Images, b.layout.Labels, target)
	outcome.Generated = len(samples)

	var aborted *augment.ClassAugmentationAborted
	switch {
	case err == nil:
		klog.Infof("class %d: generated %d samples", entry.ClassID, len(samples))
		return outcome, nil
	case errors.As(err, &aborted):
		klog.Warningf("%v", err)
		outcome.Aborted = true
		outcome.Reason = aborted.Reason
		return outcome, nil
	}
	return outcome, err
}

// Extract copies every pair containing classID into outDir/{images,labels}
func (b *Builder) Extract(classID int, outDir string) (int, error) {
	index, err := b.scanner.Scan(b.layout.Images, b.layout.Labels)
	if err != nil {
		return 0, err
	}
	n, errs, err := dataset.ExtractClass(index.Valid(), classID, outDir)
	if len(errs) > 0 {
		klog.Warningf("%d label files could not be parsed and were skipped", len(errs))
	}
	return n, err
}

// Merge rebuilds the final dataset directories from the original and augmented pairs.
// Augmented files win on name collisions. With merge.keep_existing the previous content
// is kept instead.
func (b *Builder) Merge() (assembler.MergeStats, error) {
	sources := []assembler.Source{{ImagesDir: b.layout.Images, LabelsDir: b.layout.Labels}}
	if utils.DirExists(b.layout.AugmentedImages) && utils.DirExists(b.layout.AugmentedLabels) {
		sources = append(sources, assembler.Source{ImagesDir: b.layout.AugmentedImages, LabelsDir: b.layout.AugmentedLabels})
	} else {
		klog.Warningf("no augmented samples under %s, merging originals only", b.layout.AugmentedImages)
	}

	opts := []assembler.Option{assembler.WithLabelExt(b.cfg.Output.LabelExt)}
	if b.cfg.Merge.KeepExisting {
		opts = append(opts, assembler.KeepExisting())
	}
	total, err := assembler.CountFiles(sources, opts...)
	if err != nil {
		return assembler.MergeStats{}, err
	}
	bar := b.progress("merging", total)
	defer bar.Finish()

	opts = append(opts, assembler.WithProgress(func() { _ = bar.Add(1) }))
	return assembler.Merge(sources, assembler.Source{ImagesDir: b.layout.FinalImages, LabelsDir: b.layout.FinalLabels}, opts...)
}

// Verify lists the mismatches between an images and a labels directory
func (b *Builder) Verify(imagesDir, labelsDir string) ([]types.Mismatch, error) {
	return b.checker.Verify(imagesDir, labelsDir)
}

// SplitOutcome is the result of Split
type SplitOutcome struct {
	Result   assembler.SplitResult
	Manifest assembler.Manifest
}

// Split partitions the final dataset into train/valid/test directories and writes the
// data.yaml manifest.
func (b *Builder) Split() (SplitOutcome, error) {
	entries, err := b.pairedEntries(b.layout.FinalImages, b.layout.FinalLabels)
	if err != nil {
		return SplitOutcome{}, err
	}
	result, err := assembler.Split(entries, b.cfg.Ratios(), b.cfg.Split.Seed)
	if err != nil {
		return SplitOutcome{}, err
	}

	bar := b.progress("splitting", result.Len())
	err = assembler.WriteSplits(result, b.layout.Splits, assembler.WithProgress(func() { _ = bar.Add(1) }))
	_ = bar.Finish()
	if err != nil {
		return SplitOutcome{}, err
	}

	names, err := b.ClassNames()
	if err != nil {
		return SplitOutcome{}, err
	}
	manifest, err := assembler.WriteManifest(b.layout.Manifest, b.layout.Splits, names)
	if err != nil {
		return SplitOutcome{}, err
	}
	klog.Infof("split %d samples %s into train=%d valid=%d test=%d, manifest %s",
		result.Len(), b.cfg.Ratios(), len(result.Train), len(result.Valid), len(result.Test), b.layout.Manifest)
	return SplitOutcome{Result: result, Manifest: manifest}, nil
}

// Preview draws the boxes of up to limit pairs of a directory pair into the debug
// directory and returns the written paths.
func (b *Builder) Preview(imagesDir, labelsDir string, limit int) ([]string, error) {
	names, err := b.ClassNames()
	if err != nil {
		return nil, err
	}
	index, err := b.scanner.Scan(imagesDir, labelsDir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(b.layout.Debug); err != nil {
		return nil, err
	}

	var written []string
	for _, e := range index.Valid() {
		if limit > 0 && len(written) >= limit {
			break
		}
		img, err := b.processor.LoadImage(e.ImagePath)
		if err != nil {
			klog.Warningf("skipping %s: %v", e.ImagePath, err)
			continue
		}
		record, err := labels.ReadFile(e.LabelPath)
		if err != nil {
			klog.Warningf("skipping %s: %v", e.LabelPath, err)
			continue
		}
		path := filepath.Join(b.layout.Debug, e.Base+"_boxes.png")
		if err := b.processor.SaveImage(b.processor.DrawAnnotations(img, record, names), path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// RunReport collects the results of a full pipeline run
type RunReport struct {
	Plan    *planner.Plan
	Augment *report.AugmentSummary
	Merge   assembler.MergeStats
	Split   SplitOutcome
}

// ExitCode is 1 when any class was abandoned during augmentation, 0 otherwise
func (r *RunReport) ExitCode() int {
	if r.Augment != nil && len(r.Augment.Aborted()) > 0 {
		return 1
	}
	return 0
}

// Run executes Plan, Augment, Merge and Split in order. It stops at the first error;
// the report holds the results of the stages that completed.
func (b *Builder) Run() (*RunReport, error) {
	rep := &RunReport{}
	var err error

	if rep.Plan, err = b.Plan(); err != nil {
		return rep, errors.WithMessage(err, "plan")
	}
	if rep.Augment, err = b.Augment(rep.Plan); err != nil {
		return rep, errors.WithMessage(err, "augment")
	}
	if rep.Merge, err = b.Merge(); err != nil {
		return rep, errors.WithMessage(err, "merge")
	}
	if rep.Split, err = b.Split(); err != nil {
		return rep, errors.WithMessage(err, "split")
	}
	return rep, nil
}

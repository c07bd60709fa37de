package assembler

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
)

// ManifestFile is the conventional manifest name inside the splits root
const ManifestFile = "data.yaml"

// Manifest is the data.yaml document consumed by YOLO trainers
type Manifest struct {
	Path  string         `yaml:"path"`
	Train string         `yaml:"train"`
	Val   string         `yaml:"val"`
	Test  string         `yaml:"test"`
	Names map[int]string `yaml:"names"`
}

// NewManifest describes the splits written under splitsRoot. Class ids follow the order
// of classNames.
func NewManifest(splitsRoot string, classNames []string) Manifest {
	names := make(map[int]string, len(classNames))
	for i, n := range classNames {
		names[i] = n
	}
	root := splitsRoot
	if abs, err := filepath.Abs(splitsRoot); err == nil {
		root = abs
	}
	return Manifest{
		Path:  root,
		Train: TrainDir + "/images",
		Val:   ValidDir + "/images",
		Test:  TestDir + "/images",
		Names: names,
	}
}

// Encode writes the manifest as YAML
func (m Manifest) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return errors.Wrap(err, "failed to encode manifest")
	}
	return enc.Close()
}

// WriteManifest writes the manifest for splitsRoot to path
func WriteManifest(path, splitsRoot string, classNames []string) (Manifest, error) {
	m := NewManifest(splitsRoot, classNames)
	err := utils.WriteFileAtomic(path, m.Encode)
	return m, err
}

// ReadManifest loads a data.yaml document
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, errors.Wrapf(err, "failed to read manifest %q", path)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, errors.Wrapf(err, "failed to parse manifest %q", path)
	}
	return m, nil
}

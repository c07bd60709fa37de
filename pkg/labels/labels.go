// Package labels reads and writes YOLO label files and the classes.txt name list.
//
// A label file holds one line per box: "class_id cx cy w h", space separated, with the
// box normalized to the image size.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// ParseError reports a malformed line. It is scoped to a single file: callers log it
// and exclude the file, they never abort a scan because of it.
type ParseError struct {
	File   string
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
	}
	return fmt.Sprintf("%s:%d: %s: %q", e.File, e.Line, e.Reason, e.Text)
}

// ParseLine parses one "class_id cx cy w h" line
func ParseLine(line string) (types.Annotation, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return types.Annotation{}, &ParseError{Text: line, Reason: fmt.Sprintf("expected 5 fields, got %d", len(fields))}
	}
	classID, err := strconv.Atoi(fields[0])
	if err != nil || classID < 0 {
		return types.Annotation{}, &ParseError{Text: line, Reason: "class id is not a non-negative integer"}
	}
	var values [4]float64
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return types.Annotation{}, &ParseError{Text: line, Reason: fmt.Sprintf("field %d is not a number", i+2)}
		}
		values[i] = v
	}
	return types.Annotation{
		ClassID: classID,
		Box: types.NormalizedBox{
			XCenter: values[0],
			YCenter: values[1],
			Width:   values[2],
			Height:  values[3],
		},
	}, nil
}

// Parse reads label lines from r. Blank lines are ignored. name is used in errors.
func Parse(r io.Reader, name string) ([]types.Annotation, error) {
	var annotations []types.Annotation
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		a, err := ParseLine(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.File = name
				pe.Line = lineNo
			}
			return nil, err
		}
		annotations = append(annotations, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", name)
	}
	return annotations, nil
}

// ReadFile loads the label file at path into a LabelRecord named after its base filename
func ReadFile(path string) (types.LabelRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.LabelRecord{}, errors.Wrapf(err, "failed to open label file")
	}
	defer f.Close()

	annotations, err := Parse(f, path)
	if err != nil {
		return types.LabelRecord{}, err
	}
	return types.LabelRecord{Base: utils.BaseName(path), Annotations: annotations}, nil
}

// Format writes the annotations in YOLO format with six decimals
func Format(w io.Writer, annotations []types.Annotation) error {
	for _, a := range annotations {
		b := a.Box
		if _, err := fmt.Fprintf(w, "%d %.6f %.6f %.6f %.6f\n", a.ClassID, b.XCenter, b.YCenter, b.Width, b.Height); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the record to path. The file only appears once fully written.
func WriteFile(path string, record types.LabelRecord) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return Format(w, record.Annotations)
	})
}

// LoadClassNames reads classes.txt: one class name per line, the line index being the
// class id. Blank lines are skipped.
func LoadClassNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening class names file")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading class names file")
	}
	return names, nil
}

// ClassName returns the name of classID, or a placeholder when names does not cover it
func ClassName(names []string, classID int) string {
	if classID >= 0 && classID < len(names) {
		return names[classID]
	}
	return fmt.Sprintf("class %d", classID)
}

// Package planner decides which single-class images get re-augmented and how many
// synthetic samples each underrepresented class still needs.
//
// Plans are pure functions of their inputs. Randomness only enters when the
// augmentation engine consumes a plan.
package planner

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/yolo-dataset-builder/internal/utils"
	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

// DefaultTarget is the per-class sample count aimed for when none is configured
const DefaultTarget = 500

// Plan is an ordered list of classes to augment
type Plan struct {
	Entries []types.PlanEntry
}

// Entry returns the plan entry of classID
func (p *Plan) Entry(classID int) (types.PlanEntry, bool) {
	for _, e := range p.Entries {
		if e.ClassID == classID {
			return e, true
		}
	}
	return types.PlanEntry{}, false
}

// TotalDeficit sums the deficits of all entries
func (p *Plan) TotalDeficit() int {
	total := 0
	for _, e := range p.Entries {
		total += e.Deficit
	}
	return total
}

// UniformQuotas gives every class in classIDs the same target
func UniformQuotas(classIDs []int, target int) map[int]types.ClassQuota {
	quotas := make(map[int]types.ClassQuota, len(classIDs))
	for _, id := range classIDs {
		quotas[id] = types.ClassQuota{ClassID: id, Target: target}
	}
	return quotas
}

// BuildPlan computes, for each class with a quota, the deficit between its target and the
// number of single-class images available for it. Classes without a deficit are omitted.
// Entries are sorted by class id; bases keep the scan order.
func BuildPlan(index dataset.ClassIndex, quotas map[int]types.ClassQuota) *Plan {
	ids := make([]int, 0, len(quotas))
	for id := range quotas {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	plan := &Plan{}
	for _, id := range ids {
		bases := index[id]
		q := quotas[id]
		q.ClassID = id
		q.Current = len(bases)
		deficit := q.Deficit()
		if deficit == 0 {
			continue
		}
		plan.Entries = append(plan.Entries, types.PlanEntry{
			ClassID: id,
			Bases:   append([]string(nil), bases...),
			Deficit: deficit,
		})
	}
	return plan
}

// WritePlan writes the plan as "# Class <id> (<name>)" headers followed by
// "class_id,base_filename" lines.
func WritePlan(w io.Writer, plan *Plan, classNames []string) error {
	for _, e := range plan.Entries {
		if _, err := fmt.Fprintf(w, "# Class %d (%s)\n", e.ClassID, labels.ClassName(classNames, e.ClassID)); err != nil {
			return err
		}
		for _, base := range e.Bases {
			if _, err := fmt.Fprintf(w, "%d,%s\n", e.ClassID, base); err != nil {
				return err
			}
		}
	}
	return nil
}

// SavePlan writes the plan file at path atomically
func SavePlan(path string, plan *Plan, classNames []string) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return WritePlan(w, plan, classNames)
	})
}

// ParsePlan reads the class to source-bases listing of a plan file, keeping file order
func ParsePlan(r io.Reader) (dataset.ClassIndex, error) {
	index := make(dataset.ClassIndex)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		classStr, base, ok := strings.Cut(line, ",")
		base = strings.TrimSpace(base)
		if !ok || base == "" || strings.Contains(base, ",") {
			return nil, &labels.ParseError{Line: lineNo, Text: line, Reason: "expected class_id,base_filename"}
		}
		classID, err := strconv.Atoi(strings.TrimSpace(classStr))
		if err != nil || classID < 0 {
			return nil, &labels.ParseError{Line: lineNo, Text: line, Reason: "class id is not a non-negative integer"}
		}
		index[classID] = append(index[classID], base)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read plan")
	}
	return index, nil
}

// ReadPlan parses a plan file. Deficits are not stored in the file: they are recomputed
// from quotas against the number of listed bases, and classes without a deficit or
// without a quota are dropped.
func ReadPlan(r io.Reader, quotas map[int]types.ClassQuota) (*Plan, error) {
	index, err := ParsePlan(r)
	if err != nil {
		return nil, err
	}
	return BuildPlan(index, quotas), nil
}

// LoadIndex reads the class listing of the plan file at path
func LoadIndex(path string) (dataset.ClassIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open plan file")
	}
	defer f.Close()

	index, err := ParsePlan(f)
	if err != nil {
		var pe *labels.ParseError
		if errors.As(err, &pe) {
			pe.File = path
		}
		return nil, err
	}
	return index, nil
}

// LoadPlan reads the plan file at path
func LoadPlan(path string, quotas map[int]types.ClassQuota) (*Plan, error) {
	index, err := LoadIndex(path)
	if err != nil {
		return nil, err
	}
	return BuildPlan(index, quotas), nil
}

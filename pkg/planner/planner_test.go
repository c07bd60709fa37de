package planner

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/yolo-dataset-builder/pkg/dataset"
	"github.com/menta2k/yolo-dataset-builder/pkg/labels"
	"github.com/menta2k/yolo-dataset-builder/pkg/types"
)

func sampleIndex() dataset.ClassIndex {
	return dataset.ClassIndex{
		3:  {"leaf_10", "leaf_02", "leaf_07"},
		6:  {"rust_1"},
		9:  {"blight_a", "blight_b"},
		14: {"spot_1", "spot_2", "spot_3", "spot_4"},
	}
}

func TestBuildPlan(t *testing.T) {
	quotas := map[int]types.ClassQuota{
		3:  {Target: 5},
		9:  {Target: 2},
		14: {Target: 10},
		21: {Target: 4},
	}
	plan := BuildPlan(sampleIndex(), quotas)

	require.Len(t, plan.Entries, 3)
	assert.Equal(t, types.PlanEntry{ClassID: 3, Bases: []string{"leaf_10", "leaf_02", "leaf_07"}, Deficit: 2}, plan.Entries[0])
	assert.Equal(t, types.PlanEntry{ClassID: 14, Bases: []string{"spot_1", "spot_2", "spot_3", "spot_4"}, Deficit: 6}, plan.Entries[1])
	// A class with no eligible image keeps its deficit so the shortfall stays visible.
	assert.Equal(t, types.PlanEntry{ClassID: 21, Deficit: 4}, plan.Entries[2])

	_, ok := plan.Entry(9)
	assert.False(t, ok, "class without deficit must be omitted")
	_, ok = plan.Entry(6)
	assert.False(t, ok, "class without quota must be omitted")
	assert.Equal(t, 12, plan.TotalDeficit())
}

func TestBuildPlanDeterministic(t *testing.T) {
	quotas := UniformQuotas([]int{3, 6, 9, 14}, 12)
	first := BuildPlan(sampleIndex(), quotas)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, BuildPlan(sampleIndex(), quotas))
	}
}

func TestBuildPlanDoesNotAliasIndex(t *testing.T) {
	index := sampleIndex()
	plan := BuildPlan(index, UniformQuotas([]int{3}, 10))
	plan.Entries[0].Bases[0] = "changed"
	assert.Equal(t, "leaf_10", index[3][0])
}

func TestWritePlan(t *testing.T) {
	plan := BuildPlan(sampleIndex(), UniformQuotas([]int{3, 6}, 4))
	var buf bytes.Buffer
	require.NoError(t, WritePlan(&buf, plan, []string{"a", "b", "c", "Maize Rust"}))

	expected := "# Class 3 (Maize Rust)\n" +
		"3,leaf_10\n3,leaf_02\n3,leaf_07\n" +
		"# Class 6 (class 6)\n" +
		"6,rust_1\n"
	assert.Equal(t, expected, buf.String())
}

func TestReadPlanRoundTrip(t *testing.T) {
	quotas := UniformQuotas([]int{3, 6, 9, 14}, 6)
	plan := BuildPlan(sampleIndex(), quotas)

	path := filepath.Join(t.TempDir(), "augment_plan.txt")
	require.NoError(t, SavePlan(path, plan, nil))

	loaded, err := LoadPlan(path, quotas)
	require.NoError(t, err)
	assert.Equal(t, plan, loaded)
}

func TestReadPlanRecomputesDeficit(t *testing.T) {
	input := "# Class 9 (Tomato)\n9,a\n9,b\n\n# Class 2\n2,c\n"
	plan, err := ReadPlan(strings.NewReader(input), map[int]types.ClassQuota{9: {Target: 500}})
	require.NoError(t, err)
	require.Len(t, plan.Entries, 1)
	assert.Equal(t, 498, plan.Entries[0].Deficit)
	assert.Equal(t, []string{"a", "b"}, plan.Entries[0].Bases)
}

func TestReadPlanMalformed(t *testing.T) {
	for _, input := range []string{"9;a\n", "x,a\n", "9,\n", "9,a,b\n"} {
		_, err := ReadPlan(strings.NewReader(input), UniformQuotas([]int{9}, 10))
		var pe *labels.ParseError
		assert.True(t, errors.As(err, &pe), "input %q", input)
	}
}

func TestLoadPlanMissingFile(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

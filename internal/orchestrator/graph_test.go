package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/reelchain/internal/domain"
)

func TestPipelineGraph(t *testing.T) {
	t.Parallel()
	g := PipelineGraph()

	assert.Equal(t, span(1, 11), g.Order())
	assert.Equal(t, 11, g.Len())

	audio, ok := g.Definition(8)
	require.True(t, ok)
	assert.Equal(t, ClassAudio, audio.Class)
	assert.True(t, audio.ContinueOnFailure)
	assert.False(t, audio.Critical)

	for _, id := range []domain.TaskID{9, 11} {
		def, ok := g.Definition(id)
		require.True(t, ok)
		assert.True(t, def.isSoft(8), "task %d", id)
	}
	for _, id := range []domain.TaskID{1, 4} {
		def, _ := g.Definition(id)
		assert.True(t, def.Critical, "task %d", id)
	}

	_, ok = g.Definition(12)
	assert.False(t, ok)
}

func TestOrderIsACopy(t *testing.T) {
	t.Parallel()
	g := PipelineGraph()
	order := g.Order()
	order[0] = 99
	assert.Equal(t, domain.TaskID(1), g.Order()[0])
}

func TestNewGraphOrdersLowestReadyFirst(t *testing.T) {
	t.Parallel()
	g, err := NewGraph([]TaskDefinition{
		{ID: 5, Class: ClassText, Prerequisites: ids(2)},
		{ID: 2, Class: ClassText},
		{ID: 3, Class: ClassText, Prerequisites: ids(5)},
		{ID: 1, Class: ClassText, Prerequisites: ids(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, ids(2, 1, 5, 3), g.Order())
}

func TestNewGraphRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		defs []TaskDefinition
		want string
	}{
		{name: "empty", defs: nil, want: "no tasks"},
		{
			name: "non-positive id",
			defs: []TaskDefinition{{ID: 0, Class: ClassText}},
			want: "invalid task id",
		},
		{
			name: "duplicate id",
			defs: []TaskDefinition{{ID: 1, Class: ClassText}, {ID: 1, Class: ClassText}},
			want: "duplicate task id 1",
		},
		{
			name: "missing class",
			defs: []TaskDefinition{{ID: 1}},
			want: "no resource class",
		},
		{
			name: "self dependency",
			defs: []TaskDefinition{{ID: 1, Class: ClassText, Prerequisites: ids(1)}},
			want: "depends on itself",
		},
		{
			name: "unknown prerequisite",
			defs: []TaskDefinition{{ID: 1, Class: ClassText, Prerequisites: ids(7)}},
			want: "unknown task 7",
		},
		{
			name: "repeated prerequisite",
			defs: []TaskDefinition{
				{ID: 1, Class: ClassText},
				{ID: 2, Class: ClassText, Prerequisites: ids(1, 1)},
			},
			want: "twice",
		},
		{
			name: "soft prerequisite outside prerequisites",
			defs: []TaskDefinition{
				{ID: 1, Class: ClassText},
				{ID: 2, Class: ClassText, SoftPrerequisites: ids(1)},
			},
			want: "is not a prerequisite",
		},
		{
			name: "cycle",
			defs: []TaskDefinition{
				{ID: 1, Class: ClassText, Prerequisites: ids(3)},
				{ID: 2, Class: ClassText, Prerequisites: ids(1)},
				{ID: 3, Class: ClassText, Prerequisites: ids(2)},
				{ID: 4, Class: ClassText},
			},
			want: "cycle detected among 3 tasks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.defs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

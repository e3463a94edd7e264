package generation_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/phrazzld/sprint-planner-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyGenerator(t *testing.T) {
	t.Parallel()
	g := generation.NewDummyGenerator()
	ctx := context.Background()

	t.Run("draft names the unit", func(t *testing.T) {
		t.Parallel()
		out, err := g.Generate(ctx, generation.Request{Intent: generation.IntentTaskDraft, Refs: []string{"Auth"}})
		require.NoError(t, err)

		var resp struct {
			Tasks []struct{ Title string } `json:"tasks"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Tasks, 2)
		assert.Equal(t, "Auth: design", resp.Tasks[0].Title)
	})

	t.Run("refine echoes ids and chains dependencies", func(t *testing.T) {
		t.Parallel()
		out, err := g.Generate(ctx, generation.Request{Intent: generation.IntentTaskRefine, Refs: []string{"a", "b"}})
		require.NoError(t, err)

		var resp struct {
			Tasks []struct {
				TaskID    string   `json:"task_id"`
				DependsOn []string `json:"depends_on_task_ids"`
			} `json:"tasks"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Len(t, resp.Tasks, 2)
		assert.Equal(t, "a", resp.Tasks[0].TaskID)
		assert.Empty(t, resp.Tasks[0].DependsOn)
		assert.Equal(t, []string{"a"}, resp.Tasks[1].DependsOn)
	})

	t.Run("split yields two children per parent", func(t *testing.T) {
		t.Parallel()
		out, err := g.Generate(ctx, generation.Request{Intent: generation.IntentTaskSplit, Refs: []string{"p"}})
		require.NoError(t, err)
		assert.Contains(t, out, `"parent_task_id":"p"`)
	})

	t.Run("unknown intent fails", func(t *testing.T) {
		t.Parallel()
		_, err := g.Generate(ctx, generation.Request{Intent: "objective_step"})
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
	})
}

package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	project := ProjectPath("hello")
	a := Succeeded(ComponentPath("hello", "a"), OpUpdate, "updated")
	b := Failed(ComponentPath("hello", "b"), OpUpdate, "merge failed", &ConflictError{Files: []string{"po/fr.json"}})

	t.Run("all succeed", func(t *testing.T) {
		out := Aggregate(project, OpUpdate, []Outcome{a, a})
		assert.True(t, out.Success)
		assert.Equal(t, 2, out.SuccessCount())
		assert.Equal(t, 0, out.FailureCount())
		assert.Empty(t, out.Code)
	})

	t.Run("partial failure names failed child", func(t *testing.T) {
		out := Aggregate(project, OpUpdate, []Outcome{a, b})
		assert.False(t, out.Success)
		assert.Equal(t, 1, out.SuccessCount())
		assert.Equal(t, 1, out.FailureCount())
		require.Len(t, out.Failed(), 1)
		assert.Equal(t, "hello/b", out.Failed()[0].Node.String())
		assert.Contains(t, out.Summary, "hello/b")
		assert.NotContains(t, out.Summary, "hello/a ")
		assert.Empty(t, out.Code, "mixed results carry no single code")
	})

	t.Run("all fail keeps code", func(t *testing.T) {
		out := Aggregate(project, OpUpdate, []Outcome{b})
		assert.False(t, out.Success)
		assert.Equal(t, CodeConflict, out.Code)
	})

	t.Run("empty", func(t *testing.T) {
		out := Aggregate(project, OpUpdate, nil)
		assert.True(t, out.Success)
		assert.Contains(t, out.Summary, "nothing to do")
	})
}

func TestFailed_CarriesConflictFiles(t *testing.T) {
	err := fmt.Errorf("merge: %w", &ConflictError{Files: []string{"a.json", "b.json"}})
	out := Failed(ComponentPath("p", "c"), OpUpdate, "update failed", err)

	assert.False(t, out.Success)
	assert.Equal(t, CodeConflict, out.Code)
	assert.Equal(t, []string{"a.json", "b.json"}, out.Files)
	assert.Contains(t, out.Summary, "a.json, b.json")
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ""},
		{WrapError(ErrForbidden, "alice"), CodeForbidden},
		{WrapError(ErrNotFound, "x"), CodeNotFound},
		{&ConflictError{}, CodeConflict},
		{WrapError(ErrRejected, "push"), CodeRejected},
		{ErrBusy, CodeBusy},
		{ErrDirty, CodeDirty},
		{WrapErrorf(ErrIO, "write %s", "fr.json"), CodeIO},
		{ErrVCS, CodeVCS},
		{errors.New("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err), "error: %v", tt.err)
	}
}

func TestOutcome_MarshalJSON(t *testing.T) {
	out := Aggregate(ProjectPath("hello"), OpPush, []Outcome{
		Succeeded(ComponentPath("hello", "po"), OpPush, "pushed"),
	})

	data, err := json.Marshal(out)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "hello", decoded["node"])
	assert.Equal(t, "push", decoded["operation"])
	children, ok := decoded["children"].([]any)
	require.True(t, ok)
	require.Len(t, children, 1)
	assert.Equal(t, "hello/po", children[0].(map[string]any)["node"])
}

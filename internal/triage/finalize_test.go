package triage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"vitalsup/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type write struct {
	ID     string
	Status model.TriageStatus
	AltURL string
}

type fakeUpdater struct {
	writes []write
	failOn string
}

func (f *fakeUpdater) UpdateTriage(ctx context.Context, id string, status model.TriageStatus, alternativeURL string) error {
	if id == f.failOn {
		return errors.New("permission denied for table discovered_articles")
	}
	f.writes = append(f.writes, write{id, status, alternativeURL})
	return nil
}

type fakeQueue struct {
	pushed []string
	err    error
}

func (q *fakeQueue) Push(ctx context.Context, id string) error {
	if q.err != nil {
		return q.err
	}
	q.pushed = append(q.pushed, id)
	return nil
}

func TestPlan_RejectsNonArrays(t *testing.T) {
	for _, raw := range []string{``, `null`, `{}`, `"a1"`, `42`, `{"id":"a1"}`, `[`} {
		_, err := Plan(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidUpdates, "input %q", raw)
	}
}

func TestPlan_Classifies(t *testing.T) {
	entries, err := Plan(json.RawMessage(`[
		{"id":"a1","status":"accepted_for_lab","alternativeUrl":"https://alt.example.com"},
		{"status":"rejected_by_human"},
		{"id":"a3"},
		{"id":"a4","status":null},
		{"id":"a5","status":"flagged_paywalled","alternativeUrl":"https://ignored.example.com"}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 5)

	assert.Equal(t, Valid, entries[0].Kind)
	assert.Equal(t, "https://alt.example.com", entries[0].Update.AlternativeURL)
	assert.Equal(t, Skipped, entries[1].Kind)
	assert.Equal(t, "missing id", entries[1].Reason)
	assert.Equal(t, Skipped, entries[2].Kind)
	assert.Equal(t, Skipped, entries[3].Kind)
	assert.Equal(t, Valid, entries[4].Kind)
	assert.Empty(t, entries[4].Update.AlternativeURL, "alternative URL only travels with acceptance")
}

func TestPlan_FatalEntries(t *testing.T) {
	tests := map[string]string{
		"unknown status":    `[{"id":"a1","status":"accepted_for_lab"},{"id":"a2","status":"published"}]`,
		"upstream status":   `[{"id":"a1","status":"passed_relevance_check"}]`,
		"numeric id":        `[{"id":7,"status":"rejected_by_human"}]`,
		"not an object":     `["a1"]`,
		"null element":      `[null]`,
		"non-string altUrl": `[{"id":"a1","status":"accepted_for_lab","alternativeUrl":true}]`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Plan(json.RawMessage(raw))
			var planErr *PlanError
			assert.True(t, errors.As(err, &planErr), "got %v", err)
		})
	}
}

func TestFinalize_AppliesInOrder(t *testing.T) {
	store := &fakeUpdater{}
	queue := &fakeQueue{}
	f := NewFinalizer(store, queue, zap.NewNop())

	entries, err := PlanUpdates([]Update{
		{ID: "a1", Status: model.StatusAcceptedForLab, AlternativeURL: "https://alt.example.com"},
		{ID: "", Status: model.StatusRejectedByHuman},
		{ID: "a3", Status: model.StatusFlaggedPaywalled},
		{ID: "a4", Status: model.StatusRejectedByHuman},
	})
	require.NoError(t, err)

	rep, err := f.Finalize(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, Report{Applied: 3, Skipped: 1}, rep)
	assert.Equal(t, []write{
		{"a1", model.StatusAcceptedForLab, "https://alt.example.com"},
		{"a3", model.StatusFlaggedPaywalled, ""},
		{"a4", model.StatusRejectedByHuman, ""},
	}, store.writes)
	assert.Equal(t, []string{"a1"}, queue.pushed, "only accepted articles are snapshotted")
}

func TestFinalize_StopsAtFirstFailure(t *testing.T) {
	updates := []Update{
		{ID: "a1", Status: model.StatusRejectedByHuman},
		{ID: "a2", Status: model.StatusAcceptedForLab},
		{ID: "a3", Status: model.StatusFlaggedPaywalled},
		{ID: "a4", Status: model.StatusRejectedByHuman},
	}

	for k := 1; k <= len(updates); k++ {
		failing := updates[k-1].ID
		store := &fakeUpdater{failOn: failing}
		f := NewFinalizer(store, nil, zap.NewNop())

		entries, err := PlanUpdates(updates)
		require.NoError(t, err)

		rep, err := f.Finalize(context.Background(), entries)
		var itemErr *ItemError
		require.True(t, errors.As(err, &itemErr))
		assert.Equal(t, failing, itemErr.ID)
		assert.Contains(t, itemErr.Error(), "permission denied")

		// items 1..k-1 committed, k..N never attempted
		assert.Len(t, store.writes, k-1)
		assert.Equal(t, k-1, rep.Applied)
		for i, w := range store.writes {
			assert.Equal(t, updates[i].ID, w.ID)
		}
	}
}

func TestFinalize_QueueFailureIsNotFatal(t *testing.T) {
	store := &fakeUpdater{}
	f := NewFinalizer(store, &fakeQueue{err: errors.New("redis down")}, zap.NewNop())

	entries, err := PlanUpdates([]Update{{ID: "a1", Status: model.StatusAcceptedForLab}})
	require.NoError(t, err)

	_, err = f.Finalize(context.Background(), entries)
	assert.NoError(t, err)
	assert.Len(t, store.writes, 1)
}

func TestFinalize_Idempotent(t *testing.T) {
	store := &fakeUpdater{}
	f := NewFinalizer(store, nil, zap.NewNop())
	entries, err := PlanUpdates([]Update{{ID: "a1", Status: model.StatusFlaggedPaywalled}})
	require.NoError(t, err)

	_, err = f.Finalize(context.Background(), entries)
	require.NoError(t, err)
	_, err = f.Finalize(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, store.writes[0], store.writes[1])
}

package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

type recordingSink struct {
	name     string
	err      error
	outcomes []RunOutcome
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Record(_ context.Context, outcome RunOutcome) error {
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

func TestReporterCallsEverySinkAndCombinesErrors(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	bad := &recordingSink{name: "bad", err: errors.New("insert failed")}
	worse := &recordingSink{name: "worse", err: errors.New("quota exceeded")}

	err := NewReporter(quietLogger(), ok, nil, bad, worse).Report(context.Background(), RunOutcome{RunID: uuid.New()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: insert failed")
	assert.Contains(t, err.Error(), "worse: quota exceeded")
	assert.Len(t, ok.outcomes, 1)
	assert.Len(t, worse.outcomes, 1)
}

func TestNewRunOutcomeMode(t *testing.T) {
	runID := uuid.New()
	outcome := NewRunOutcome(RunResult{DryRun: true, Processed: 4}, runID, "cli")

	assert.Equal(t, enums.RunModeDryRun, outcome.Mode)
	assert.Equal(t, runID, outcome.RunID)
	assert.Equal(t, "cli", outcome.RequestedBy)
	assert.Equal(t, 4, outcome.Processed)
}

func TestTopOwnersSortsAndCaps(t *testing.T) {
	var cands []Candidate
	add := func(owner string, n int) {
		for i := 0; i < n; i++ {
			cands = append(cands, ownedCandidate(newMessage(enums.MessagePriorityLow, baseTime), owner))
		}
	}
	add("c", 1)
	add("a", 3)
	add("b", 3)
	add("d", 2)
	cands = append(cands, Candidate{Message: newMessage(enums.MessagePriorityLow, baseTime)})

	top := topOwners(cands, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "a", top[0].OwnerID)
	assert.Equal(t, "b", top[1].OwnerID)
	assert.Equal(t, "d", top[2].OwnerID)
	assert.Equal(t, 3, top[0].Count)
	assert.Equal(t, "Owner a", top[0].OwnerName)
}

func TestPriorityBreakdownIncludesEveryPriority(t *testing.T) {
	got := priorityBreakdown(candidatesOf(newMessage(enums.MessagePriorityHigh, baseTime), newMessage(enums.MessagePriorityHigh, baseTime)))
	assert.Equal(t, map[string]int{"HIGH": 2, "MEDIUM": 0, "LOW": 0}, got)
}

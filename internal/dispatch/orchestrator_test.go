package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/outbound-dispatch/pkg/clock"
	"github.com/angelmondragon/outbound-dispatch/pkg/enums"
)

type recordedWrite struct {
	kind    string
	leaseID uuid.UUID
	failure FailureUpdate
	next    time.Time
}

type fakeStateWriter struct {
	mu       sync.Mutex
	writes   map[uuid.UUID]recordedWrite
	rejectID uuid.UUID
}

func newFakeStateWriter() *fakeStateWriter {
	return &fakeStateWriter{writes: map[uuid.UUID]recordedWrite{}}
}

func (f *fakeStateWriter) record(id uuid.UUID, w recordedWrite) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.rejectID {
		return false
	}
	f.writes[id] = w
	return true
}

func (f *fakeStateWriter) MarkSent(_ context.Context, id, leaseID uuid.UUID, _ time.Time) (bool, error) {
	return f.record(id, recordedWrite{kind: "sent", leaseID: leaseID}), nil
}

func (f *fakeStateWriter) MarkHandedOff(_ context.Context, id, leaseID uuid.UUID, _, next time.Time) (bool, error) {
	return f.record(id, recordedWrite{kind: "handed_off", leaseID: leaseID, next: next}), nil
}

func (f *fakeStateWriter) MarkFailed(_ context.Context, id, leaseID uuid.UUID, update FailureUpdate) (bool, error) {
	return f.record(id, recordedWrite{kind: "failed", leaseID: leaseID, failure: update}), nil
}

type perMessageChannel struct {
	mu       sync.Mutex
	failFor  map[string]error
	inFlight int
	peak     int
}

func (p *perMessageChannel) Name() string     { return "per-message" }
func (p *perMessageChannel) Configured() bool { return true }

func (p *perMessageChannel) Deliver(_ context.Context, env Envelope) error {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	return p.failFor[env.MessageID]
}

func TestOrchestratorRecordsEveryOutcomeOnce(t *testing.T) {
	clk := clock.NewFixed(baseTime)
	var batch []Candidate
	for i := 0; i < 7; i++ {
		batch = append(batch, Candidate{Message: newMessage(enums.MessagePriorityHigh, baseTime, withRetryCount(i%2))})
	}
	failing := batch[3].Message
	ch := &perMessageChannel{failFor: map[string]error{failing.ID.String(): errors.New("upstream 503")}}
	store := newFakeStateWriter()
	leaseID := uuid.New()

	orch := NewOrchestrator(NewAdapter(ch, time.Second), store, NewBackoff(clk), clk, quietLogger(), nil)
	exec := orch.Execute(context.Background(), leaseID, batch, 3)

	require.Len(t, exec.Results, 7)
	assert.Empty(t, exec.Unstarted)
	assert.LessOrEqual(t, ch.peak, 3)
	require.Len(t, store.writes, 7)

	for _, c := range batch {
		w := store.writes[c.Message.ID]
		assert.Equal(t, leaseID, w.leaseID)
		if c.Message.ID == failing.ID {
			assert.Equal(t, "failed", w.kind)
			assert.Equal(t, failing.RetryCount+1, w.failure.RetryCount)
			assert.Equal(t, "upstream 503", w.failure.Error)
			continue
		}
		assert.Equal(t, "handed_off", w.kind)
		assert.True(t, w.next.After(baseTime))
	}
}

func TestOrchestratorCanceledContextLeavesItemsUnstarted(t *testing.T) {
	clk := clock.NewFixed(baseTime)
	batch := candidatesOf(
		newMessage(enums.MessagePriorityHigh, baseTime),
		newMessage(enums.MessagePriorityHigh, baseTime),
		newMessage(enums.MessagePriorityHigh, baseTime),
	)
	store := newFakeStateWriter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewOrchestrator(NewAdapter(nil, 0), store, nil, clk, quietLogger(), nil).Execute(ctx, uuid.New(), batch, 2)

	assert.Empty(t, exec.Results)
	assert.Len(t, exec.Unstarted, 3)
	assert.Empty(t, store.writes)
}

func TestOrchestratorFlagsLostLease(t *testing.T) {
	clk := clock.NewFixed(baseTime)
	msg := newMessage(enums.MessagePriorityLow, baseTime)
	store := newFakeStateWriter()
	store.rejectID = msg.ID

	exec := NewOrchestrator(NewAdapter(nil, 0), store, nil, clk, quietLogger(), nil).
		Execute(context.Background(), uuid.New(), candidatesOf(msg), 5)

	require.Len(t, exec.Results, 1)
	assert.True(t, exec.Results[0].LeaseLost)
	assert.Equal(t, enums.DeliverySent, exec.Results[0].Outcome)
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "delivery failed", truncateError(nil))

	short := "zalo: gửi tin nhắn thất bại"
	assert.Equal(t, short, truncateError(errors.New(short)))

	long := strings.Repeat("ệ", 600)
	got := truncateError(errors.New(long))
	assert.Equal(t, maxErrorLength, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(long, got))

	broken := "x\xff" + strings.Repeat("a", 600)
	got = truncateError(errors.New(broken))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxErrorLength, utf8.RuneCountInString(got))
	assert.Equal(t, "x\uFFFD"+strings.Repeat("a", maxErrorLength-2), got)
}

package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"orbnet/internal/core/domain"
)

type MockSignalRelay struct {
	mock.Mock
}

func (m *MockSignalRelay) Fetch(ctx context.Context, session domain.SessionID, cursor domain.Cursor) ([]*domain.Signal, error) {
	args := m.Called(ctx, session, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Signal), args.Error(1)
}

func (m *MockSignalRelay) Publish(ctx context.Context, session domain.SessionID, role domain.SignalRole, kind domain.SignalKind, payload json.RawMessage) (*domain.Signal, error) {
	args := m.Called(ctx, session, role, kind, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Signal), args.Error(1)
}

type recordingApplier struct {
	applied []domain.SignalID
	err     error
}

func (a *recordingApplier) ApplySignal(ctx context.Context, sig *domain.Signal, payload domain.SignalPayload) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, sig.ID)
	return nil
}

var consumerEpoch = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func hostSignal(id int64, kind domain.SignalKind, payload string, offset time.Duration) *domain.Signal {
	return &domain.Signal{
		ID:        domain.SignalID(id),
		Session:   "session_1",
		Role:      domain.RoleHost,
		Kind:      kind,
		Payload:   json.RawMessage(payload),
		CreatedAt: consumerEpoch.Add(offset),
	}
}

func newViewerConsumer(t *testing.T, relay *MockSignalRelay, applier SignalApplier) *RelayConsumer {
	t.Helper()
	return NewRelayConsumer(relay, "session_1", domain.RoleViewer, applier, zaptest.NewLogger(t).Sugar())
}

func TestPoll_AppliesInOrderAndAdvancesCursor(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	signals := []*domain.Signal{
		hostSignal(1, domain.KindOffer, `{"type":"offer","sdp":"v=0 host"}`, 0),
		hostSignal(2, domain.KindCandidate, `{"candidate":"candidate:1 1 udp"}`, time.Millisecond),
	}
	relay.On("Fetch", mock.Anything, domain.SessionID("session_1"), domain.Cursor{}).Return(signals, nil)

	consumer.Poll(context.Background())

	assert.Equal(t, []domain.SignalID{1, 2}, applier.applied)
	assert.Equal(t, domain.Cursor{CreatedAt: consumerEpoch.Add(time.Millisecond), ID: 2}, consumer.Cursor())
	relay.AssertExpectations(t)
}

func TestPoll_NextPollUsesAdvancedCursor(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	first := []*domain.Signal{hostSignal(1, domain.KindOffer, `{"type":"offer","sdp":"v=0"}`, 0)}
	after := domain.Cursor{CreatedAt: consumerEpoch, ID: 1}

	relay.On("Fetch", mock.Anything, domain.SessionID("session_1"), domain.Cursor{}).Return(first, nil).Once()
	relay.On("Fetch", mock.Anything, domain.SessionID("session_1"), after).Return([]*domain.Signal{}, nil).Once()

	consumer.Poll(context.Background())
	consumer.Poll(context.Background())

	relay.AssertExpectations(t)
}

func TestPoll_DuplicateSignalAppliedOnce(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	offer := hostSignal(1, domain.KindOffer, `{"type":"offer","sdp":"v=0"}`, 0)
	// At-least-once delivery: the same signal shows up in both responses.
	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.Signal{offer}, nil).Twice()

	consumer.Poll(context.Background())
	consumer.cursor = domain.Cursor{} // simulate a cursor regression on redelivery
	consumer.Poll(context.Background())

	assert.Equal(t, []domain.SignalID{1}, applier.applied, "redelivered signal must apply exactly once")
}

func TestPoll_OwnRoleEchoSkipped(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	echo := hostSignal(1, domain.KindAnswer, `{"type":"answer","sdp":"v=0"}`, 0)
	echo.Role = domain.RoleViewer
	next := hostSignal(2, domain.KindOffer, `{"type":"offer","sdp":"v=0"}`, time.Millisecond)

	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.Signal{echo, next}, nil)

	consumer.Poll(context.Background())

	assert.Equal(t, []domain.SignalID{2}, applier.applied, "own echo must be skipped")
	assert.Equal(t, domain.SignalID(2), consumer.Cursor().ID, "skipped signals still advance the cursor")
}

func TestPoll_MalformedSignalSkippedAndConsumptionContinues(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	signals := []*domain.Signal{
		hostSignal(1, domain.KindOffer, `{"type":"offer"}`, 0),             // missing sdp
		hostSignal(2, domain.SignalKind("renegotiate"), `{}`, time.Millisecond), // unknown kind
		hostSignal(3, domain.KindCandidate, `{"candidate":"candidate:1"}`, 2*time.Millisecond),
	}
	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return(signals, nil)

	consumer.Poll(context.Background())

	assert.Equal(t, []domain.SignalID{3}, applier.applied)
	assert.Equal(t, domain.SignalID(3), consumer.Cursor().ID)
}

func TestPoll_FetchFailureSilentlyRetried(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()
	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.Signal{hostSignal(1, domain.KindOffer, `{"type":"offer","sdp":"v=0"}`, 0)}, nil).Once()

	consumer.Poll(context.Background())
	assert.Empty(t, applier.applied)
	assert.Equal(t, domain.Cursor{}, consumer.Cursor(), "a failed fetch must not move the cursor")

	consumer.Poll(context.Background())
	assert.Equal(t, []domain.SignalID{1}, applier.applied)
}

func TestPoll_ApplierErrorDoesNotReapply(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{err: assert.AnError}
	consumer := newViewerConsumer(t, relay, applier)

	offer := hostSignal(1, domain.KindOffer, `{"type":"offer","sdp":"v=0"}`, 0)
	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).
		Return([]*domain.Signal{offer}, nil).Twice()

	consumer.Poll(context.Background())
	applier.err = nil
	consumer.cursor = domain.Cursor{}
	consumer.Poll(context.Background())

	assert.Empty(t, applier.applied, "a failed apply is terminal for that signal")
}

func TestRun_PollsUntilCancelled(t *testing.T) {
	relay := new(MockSignalRelay)
	applier := &recordingApplier{}
	consumer := newViewerConsumer(t, relay, applier)

	relay.On("Fetch", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Signal{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	relay.AssertCalled(t, "Fetch", mock.Anything, domain.SessionID("session_1"), mock.Anything)
}

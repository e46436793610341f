package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

type MockMediaPeer struct {
	mock.Mock

	candidateSink      func(domain.CandidateInit)
	connectionListener func(connected bool)
}

func (m *MockMediaPeer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.SessionDescription), args.Error(1)
}

func (m *MockMediaPeer) AcceptOffer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	args := m.Called(ctx, offer)
	return args.Get(0).(domain.SessionDescription), args.Error(1)
}

func (m *MockMediaPeer) AcceptAnswer(ctx context.Context, answer domain.SessionDescription) error {
	args := m.Called(ctx, answer)
	return args.Error(0)
}

func (m *MockMediaPeer) AddCandidate(cand domain.CandidateInit) error {
	args := m.Called(cand)
	return args.Error(0)
}

func (m *MockMediaPeer) OnCandidate(fn func(domain.CandidateInit)) {
	m.candidateSink = fn
}

func (m *MockMediaPeer) OnConnectionChange(fn func(connected bool)) {
	m.connectionListener = fn
}

func (m *MockMediaPeer) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockMediaPeerFactory struct {
	mock.Mock
}

func (m *MockMediaPeerFactory) NewPeer(ctx context.Context, role domain.SignalRole) (ports.MediaPeer, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.MediaPeer), args.Error(1)
}

var (
	testOffer  = domain.SessionDescription{Type: "offer", SDP: "v=0 host offer"}
	testAnswer = domain.SessionDescription{Type: "answer", SDP: "v=0 viewer answer"}
)

func remoteCandidate(n string) domain.CandidateInit {
	return domain.CandidateInit{Candidate: "candidate:" + n + " 1 udp 2122260223 192.168.1.7 5600" + n + " typ host"}
}

func candidateSignal(id int64, role domain.SignalRole) *domain.Signal {
	return &domain.Signal{ID: domain.SignalID(id), Session: "session_1", Role: role, Kind: domain.KindCandidate, CreatedAt: consumerEpoch}
}

func descriptionSignal(id int64, role domain.SignalRole, kind domain.SignalKind) *domain.Signal {
	return &domain.Signal{ID: domain.SignalID(id), Session: "session_1", Role: role, Kind: kind, CreatedAt: consumerEpoch}
}

func newHostNegotiator(t *testing.T, relay *MockSignalRelay, peers *MockMediaPeerFactory) *Negotiator {
	t.Helper()
	return NewNegotiator(domain.RoleHost, "session_1", relay, peers, zaptest.NewLogger(t).Sugar())
}

func newViewerNegotiator(t *testing.T, relay *MockSignalRelay, peers *MockMediaPeerFactory) *Negotiator {
	t.Helper()
	return NewNegotiator(domain.RoleViewer, "session_1", relay, peers, zaptest.NewLogger(t).Sugar())
}

// recordCandidates registers an AddCandidate expectation that appends each
// applied candidate string to the returned slice.
func recordCandidates(peer *MockMediaPeer) *[]string {
	applied := &[]string{}
	peer.On("AddCandidate", mock.Anything).Run(func(args mock.Arguments) {
		*applied = append(*applied, args.Get(0).(domain.CandidateInit).Candidate)
	}).Return(nil)
	return applied
}

func TestMediaReady_PublishesExactlyOneOffer(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil).Once()
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil).Once()
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindOffer, mock.Anything).Return(nil, nil).Once()

	for i := 0; i < 3; i++ {
		assert.NoError(t, neg.MediaReady(context.Background()))
	}

	peer.AssertNumberOfCalls(t, "CreateOffer", 1)
	relay.AssertNumberOfCalls(t, "Publish", 1)
	assert.Equal(t, LinkNegotiating, neg.State())
}

func TestMediaReady_PublishesLocalDescription(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil)
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)

	var published domain.SessionDescription
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindOffer, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, json.Unmarshal(args.Get(4).(json.RawMessage), &published))
		}).Return(nil, nil)

	assert.NoError(t, neg.MediaReady(context.Background()))
	assert.Equal(t, testOffer, published)
}

func TestMediaReady_PeerCreationFailure(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(nil, errors.New("capture device unavailable"))

	err := neg.MediaReady(context.Background())
	assert.Error(t, err)
	relay.AssertNumberOfCalls(t, "Publish", 0)
	assert.Equal(t, LinkIdle, neg.State())
}

func TestMediaReady_FailedPublishLeavesOfferPending(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil).Once()
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindOffer, mock.Anything).
		Return(nil, errors.New("relay unreachable")).Once()
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindOffer, mock.Anything).
		Return(nil, nil).Once()

	assert.Error(t, neg.MediaReady(context.Background()))
	assert.NoError(t, neg.MediaReady(context.Background()))

	// The flag latches only once an offer actually reached the relay.
	assert.NoError(t, neg.MediaReady(context.Background()))
	relay.AssertNumberOfCalls(t, "Publish", 2)
}

func TestMediaReady_ViewerRejected(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	neg := newViewerNegotiator(t, relay, peers)

	err := neg.MediaReady(context.Background())
	assert.Error(t, err)
	peers.AssertNumberOfCalls(t, "NewPeer", 0)
}

func TestHostAnswer_FlushesQueuedCandidatesInOrder(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil)
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	peer.On("AcceptAnswer", mock.Anything, testAnswer).Return(nil)
	applied := recordCandidates(peer)

	assert.NoError(t, neg.MediaReady(context.Background()))

	// Candidates outrun the answer: both must wait.
	c1, c2 := remoteCandidate("1"), remoteCandidate("2")
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(2, domain.RoleViewer), domain.CandidatePayload{Candidate: c1}))
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(3, domain.RoleViewer), domain.CandidatePayload{Candidate: c2}))
	assert.Empty(t, *applied)

	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(4, domain.RoleViewer, domain.KindAnswer), domain.AnswerPayload{Description: testAnswer}))

	assert.Equal(t, []string{c1.Candidate, c2.Candidate}, *applied)
	assert.Empty(t, neg.pendingCandidates)

	// Later candidates skip the queue.
	c3 := remoteCandidate("3")
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(5, domain.RoleViewer), domain.CandidatePayload{Candidate: c3}))
	assert.Equal(t, []string{c1.Candidate, c2.Candidate, c3.Candidate}, *applied)
}

func TestHostAnswer_DuplicateIgnored(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil)
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	peer.On("AcceptAnswer", mock.Anything, testAnswer).Return(nil)

	assert.NoError(t, neg.MediaReady(context.Background()))
	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(2, domain.RoleViewer, domain.KindAnswer), domain.AnswerPayload{Description: testAnswer}))
	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(3, domain.RoleViewer, domain.KindAnswer), domain.AnswerPayload{Description: testAnswer}))

	peer.AssertNumberOfCalls(t, "AcceptAnswer", 1)
}

func TestHostAnswer_WithoutOfferIgnored(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	neg := newHostNegotiator(t, relay, peers)

	err := neg.ApplySignal(context.Background(), descriptionSignal(1, domain.RoleViewer, domain.KindAnswer), domain.AnswerPayload{Description: testAnswer})
	assert.NoError(t, err)
	peers.AssertNumberOfCalls(t, "NewPeer", 0)
}

func TestViewerOffer_AnswersAndFlushesQueued(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newViewerNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleViewer).Return(peer, nil)
	peer.On("AcceptOffer", mock.Anything, testOffer).Return(testAnswer, nil)
	applied := recordCandidates(peer)

	var published domain.SessionDescription
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleViewer, domain.KindAnswer, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, json.Unmarshal(args.Get(4).(json.RawMessage), &published))
		}).Return(nil, nil)

	// Host candidates arrive before the offer is even seen.
	c1, c2 := remoteCandidate("1"), remoteCandidate("2")
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(1, domain.RoleHost), domain.CandidatePayload{Candidate: c1}))
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(2, domain.RoleHost), domain.CandidatePayload{Candidate: c2}))
	peers.AssertNumberOfCalls(t, "NewPeer", 0)
	assert.Empty(t, *applied)

	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(3, domain.RoleHost, domain.KindOffer), domain.OfferPayload{Description: testOffer}))

	assert.Equal(t, testAnswer, published)
	assert.Equal(t, []string{c1.Candidate, c2.Candidate}, *applied)
	assert.Empty(t, neg.pendingCandidates)
	assert.Equal(t, LinkNegotiating, neg.State())
}

func TestViewerOffer_DuplicateIgnored(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newViewerNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleViewer).Return(peer, nil)
	peer.On("AcceptOffer", mock.Anything, testOffer).Return(testAnswer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(1, domain.RoleHost, domain.KindOffer), domain.OfferPayload{Description: testOffer}))
	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(2, domain.RoleHost, domain.KindOffer), domain.OfferPayload{Description: testOffer}))

	peer.AssertNumberOfCalls(t, "AcceptOffer", 1)
	relay.AssertNumberOfCalls(t, "Publish", 1)
}

func TestViewerOffer_AnswerPublishFailureStillFlushes(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newViewerNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleViewer).Return(peer, nil)
	peer.On("AcceptOffer", mock.Anything, testOffer).Return(testAnswer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("relay unreachable"))
	applied := recordCandidates(peer)

	c1 := remoteCandidate("1")
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(1, domain.RoleHost), domain.CandidatePayload{Candidate: c1}))

	err := neg.ApplySignal(context.Background(), descriptionSignal(2, domain.RoleHost, domain.KindOffer), domain.OfferPayload{Description: testOffer})
	assert.Error(t, err)
	assert.Equal(t, []string{c1.Candidate}, *applied)
}

func TestLocalCandidate_TrickledToRelay(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil)
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindOffer, mock.Anything).Return(nil, nil)

	var trickled domain.CandidateInit
	relay.On("Publish", mock.Anything, domain.SessionID("session_1"), domain.RoleHost, domain.KindCandidate, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.NoError(t, json.Unmarshal(args.Get(4).(json.RawMessage), &trickled))
		}).Return(nil, nil)

	assert.NoError(t, neg.MediaReady(context.Background()))

	local := remoteCandidate("9")
	peer.candidateSink(local)
	assert.Equal(t, local, trickled)
}

func TestConnectionChange_TracksTransportState(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newViewerNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleViewer).Return(peer, nil)
	peer.On("AcceptOffer", mock.Anything, testOffer).Return(testAnswer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	peer.On("Close").Return(nil)

	assert.NoError(t, neg.ApplySignal(context.Background(), descriptionSignal(1, domain.RoleHost, domain.KindOffer), domain.OfferPayload{Description: testOffer}))

	peer.connectionListener(true)
	assert.Equal(t, LinkConnected, neg.State())

	peer.connectionListener(false)
	assert.Equal(t, LinkNegotiating, neg.State())

	assert.NoError(t, neg.Close())
	peer.connectionListener(true)
	assert.Equal(t, LinkClosed, neg.State())
}

func TestClose_IdempotentAndTerminal(t *testing.T) {
	relay := new(MockSignalRelay)
	peers := new(MockMediaPeerFactory)
	peer := new(MockMediaPeer)
	neg := newHostNegotiator(t, relay, peers)

	peers.On("NewPeer", mock.Anything, domain.RoleHost).Return(peer, nil)
	peer.On("CreateOffer", mock.Anything).Return(testOffer, nil)
	relay.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
	peer.On("Close").Return(nil)

	assert.NoError(t, neg.MediaReady(context.Background()))
	assert.NoError(t, neg.ApplySignal(context.Background(), candidateSignal(2, domain.RoleViewer), domain.CandidatePayload{Candidate: remoteCandidate("1")}))

	assert.NoError(t, neg.Close())
	assert.NoError(t, neg.Close())
	peer.AssertNumberOfCalls(t, "Close", 1)
	assert.Empty(t, neg.pendingCandidates)

	assert.ErrorIs(t, neg.MediaReady(context.Background()), domain.ErrPeerClosed)
	err := neg.ApplySignal(context.Background(), candidateSignal(3, domain.RoleViewer), domain.CandidatePayload{Candidate: remoteCandidate("2")})
	assert.ErrorIs(t, err, domain.ErrPeerClosed)
	assert.Equal(t, LinkClosed, neg.State())
}

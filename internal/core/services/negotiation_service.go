package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// PeerLinkState is the negotiation lifecycle of the media link.
type PeerLinkState int

const (
	LinkIdle PeerLinkState = iota
	LinkNegotiating
	LinkConnected
	LinkClosed
)

func (s PeerLinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkNegotiating:
		return "negotiating"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Local candidates publish from transport callbacks that outlive any request
// context, so they carry their own deadline.
const candidatePublishTimeout = 5 * time.Second

// Negotiator drives one session's offer/answer/candidate exchange over the
// relay against a MediaPeer. There is no automatic retry anywhere in here:
// recovery from a broken exchange is Close and a fresh Negotiator.
//
// The mutex serializes MediaReady, ApplySignal and Close; transport
// callbacks touch only immutable fields or take the lock briefly.
type Negotiator struct {
	role    domain.SignalRole
	session domain.SessionID
	relay   ports.SignalRelay
	peers   ports.MediaPeerFactory
	logger  *zap.SugaredLogger

	mu                   sync.Mutex
	state                PeerLinkState
	peer                 ports.MediaPeer
	offerSent            bool
	remoteDescriptionSet bool
	pendingCandidates    []domain.CandidateInit
}

// NewNegotiator creates a negotiator for one session and role
func NewNegotiator(role domain.SignalRole, session domain.SessionID, relay ports.SignalRelay, peers ports.MediaPeerFactory, logger *zap.SugaredLogger) *Negotiator {
	return &Negotiator{
		role:    role,
		session: session,
		relay:   relay,
		peers:   peers,
		logger:  logger,
		state:   LinkIdle,
	}
}

// State returns the current link state
func (n *Negotiator) State() PeerLinkState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// MediaReady is the host's entry point, invoked whenever local capture
// reports ready. The first successful invocation creates the connection and
// publishes the offer; every later one is a no-op. At most one offer goes
// out per connection lifetime.
func (n *Negotiator) MediaReady(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return domain.ErrPeerClosed
	}
	if n.role != domain.RoleHost {
		return fmt.Errorf("media ready on role %q: only the host offers", n.role)
	}
	if n.offerSent {
		return nil
	}

	if err := n.ensurePeerLocked(ctx); err != nil {
		return err
	}

	offer, err := n.peer.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to encode offer: %w", err)
	}
	if _, err := n.relay.Publish(ctx, n.session, n.role, domain.KindOffer, payload); err != nil {
		// The offer never reached the relay, so the next media-ready
		// invocation may try again.
		return fmt.Errorf("failed to publish offer: %w", err)
	}

	n.offerSent = true
	return nil
}

// ApplySignal routes a decoded relay signal into the state machine.
// Implements SignalApplier.
func (n *Negotiator) ApplySignal(ctx context.Context, sig *domain.Signal, payload domain.SignalPayload) error {
	switch p := payload.(type) {
	case domain.OfferPayload:
		return n.handleOffer(ctx, p.Description)
	case domain.AnswerPayload:
		return n.handleAnswer(ctx, p.Description)
	case domain.CandidatePayload:
		return n.handleCandidate(p.Candidate)
	default:
		return fmt.Errorf("signal %d: %w", sig.ID, domain.ErrUnknownSignalKind)
	}
}

// handleOffer is the viewer's side: set the remote offer, answer it, publish
// the answer, then flush every candidate queued while the offer was in
// flight.
func (n *Negotiator) handleOffer(ctx context.Context, offer domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return domain.ErrPeerClosed
	}
	if n.role != domain.RoleViewer {
		n.logger.Warnw("ignoring offer addressed to the offering side", "session_id", n.session)
		return nil
	}
	if n.remoteDescriptionSet {
		// Duplicate offer, the first one already won.
		return nil
	}

	if err := n.ensurePeerLocked(ctx); err != nil {
		return err
	}

	answer, err := n.peer.AcceptOffer(ctx, offer)
	if err != nil {
		return fmt.Errorf("failed to accept offer: %w", err)
	}
	n.remoteDescriptionSet = true

	var publishErr error
	payload, err := json.Marshal(answer)
	if err != nil {
		publishErr = fmt.Errorf("failed to encode answer: %w", err)
	} else if _, err := n.relay.Publish(ctx, n.session, n.role, domain.KindAnswer, payload); err != nil {
		publishErr = fmt.Errorf("failed to publish answer: %w", err)
	}

	// The local peer has both descriptions now; the queue drains even when
	// the answer publish failed.
	n.flushPendingLocked()

	return publishErr
}

// handleAnswer is the host's side: apply the viewer's answer once, then
// flush the queued candidates.
func (n *Negotiator) handleAnswer(ctx context.Context, answer domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return domain.ErrPeerClosed
	}
	if n.role != domain.RoleHost {
		n.logger.Warnw("ignoring answer addressed to the answering side", "session_id", n.session)
		return nil
	}
	if n.peer == nil {
		n.logger.Warnw("ignoring answer with no offer outstanding", "session_id", n.session)
		return nil
	}
	if n.remoteDescriptionSet {
		// Duplicate answer, the first one already won.
		return nil
	}

	if err := n.peer.AcceptAnswer(ctx, answer); err != nil {
		return fmt.Errorf("failed to accept answer: %w", err)
	}
	n.remoteDescriptionSet = true

	n.flushPendingLocked()

	return nil
}

// handleCandidate applies a remote candidate immediately once the remote
// description is set, and queues it otherwise.
func (n *Negotiator) handleCandidate(cand domain.CandidateInit) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return domain.ErrPeerClosed
	}

	if n.peer == nil || !n.remoteDescriptionSet {
		n.pendingCandidates = append(n.pendingCandidates, cand)
		return nil
	}

	if err := n.peer.AddCandidate(cand); err != nil {
		return fmt.Errorf("failed to add candidate: %w", err)
	}
	return nil
}

// flushPendingLocked applies the queued candidates in arrival order and
// clears the queue. Caller must hold n.mu with the remote description set.
func (n *Negotiator) flushPendingLocked() {
	for _, cand := range n.pendingCandidates {
		if err := n.peer.AddCandidate(cand); err != nil {
			n.logger.Warnw("failed to add queued candidate",
				"session_id", n.session, "error", err)
		}
	}
	n.pendingCandidates = nil
}

// ensurePeerLocked lazily creates the media peer and hooks its callbacks.
// Caller must hold n.mu.
func (n *Negotiator) ensurePeerLocked(ctx context.Context) error {
	if n.peer != nil {
		return nil
	}

	peer, err := n.peers.NewPeer(ctx, n.role)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	peer.OnCandidate(n.publishLocalCandidate)
	peer.OnConnectionChange(n.onConnectionChange)

	n.peer = peer
	if n.state == LinkIdle {
		n.state = LinkNegotiating
	}
	return nil
}

// publishLocalCandidate trickles a locally gathered candidate to the relay.
// A lost candidate is not retried; the exchange survives on the rest.
func (n *Negotiator) publishLocalCandidate(cand domain.CandidateInit) {
	payload, err := json.Marshal(cand)
	if err != nil {
		n.logger.Errorw("failed to encode local candidate", "session_id", n.session, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), candidatePublishTimeout)
	defer cancel()

	if _, err := n.relay.Publish(ctx, n.session, n.role, domain.KindCandidate, payload); err != nil {
		n.logger.Warnw("failed to publish local candidate", "session_id", n.session, "error", err)
	}
}

func (n *Negotiator) onConnectionChange(connected bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return
	}
	if connected {
		n.state = LinkConnected
	} else if n.state == LinkConnected {
		n.state = LinkNegotiating
	}
}

// Close tears the link down. Idempotent; all later operations return
// ErrPeerClosed.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == LinkClosed {
		return nil
	}
	n.state = LinkClosed
	n.pendingCandidates = nil

	if n.peer != nil {
		peer := n.peer
		n.peer = nil
		if err := peer.Close(); err != nil {
			return fmt.Errorf("failed to close peer connection: %w", err)
		}
	}
	return nil
}

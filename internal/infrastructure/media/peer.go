package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/internal/core/services"
)

// Config carries the transport knobs for peer connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// Factory builds pion-backed media peers for one session. Every peer
// it creates reports RTCP into the shared quality service.
type Factory struct {
	session domain.SessionID
	config  Config
	quality *services.QualityService
	logger  *zap.SugaredLogger
}

func NewFactory(session domain.SessionID, config Config, quality *services.QualityService, logger *zap.SugaredLogger) *Factory {
	return &Factory{
		session: session,
		config:  config,
		quality: quality,
		logger:  logger,
	}
}

func (f *Factory) NewPeer(ctx context.Context, role domain.SignalRole) (ports.MediaPeer, error) {
	pc, err := f.createPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		role:    role,
		session: f.session,
		pc:      pc,
		quality: f.quality,
		logger:  f.logger,
		done:    make(chan struct{}),
	}

	if role == domain.RoleHost {
		audio, err := webrtc.NewTrackLocalStaticRTP(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio",
			"orbnet-audio",
		)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		sender, err := pc.AddTrack(audio)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("add audio track: %w", err)
		}
		p.audio = audio
		go p.readSenderRTCP(sender)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		p.notifyCandidate(domain.CandidateInit{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Infow("peer connection state changed",
			"session", p.session,
			"role", p.role,
			"state", state.String(),
		)
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if p.role == domain.RoleHost {
				p.pumpOnce.Do(func() { go p.pumpSilence() })
			}
			p.notifyConnection(true)
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			p.notifyConnection(false)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Infow("remote track started",
			"session", p.session,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		go p.drainTrack(track)
		go p.readReceiverRTCP(receiver)
	})

	return p, nil
}

func (f *Factory) createPeerConnection() (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}

	settingEngine := webrtc.SettingEngine{}
	if f.config.PortRange.Min > 0 && f.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(f.config.PortRange.Min, f.config.PortRange.Max); err != nil {
			return nil, err
		}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
	return api.NewPeerConnection(config)
}

// Peer adapts one pion PeerConnection to the media peer port. The
// negotiator drives it; it never renegotiates or retries on its own.
type Peer struct {
	role    domain.SignalRole
	session domain.SessionID
	pc      *webrtc.PeerConnection
	quality *services.QualityService
	logger  *zap.SugaredLogger

	audio *webrtc.TrackLocalStaticRTP

	mu           sync.Mutex
	onCandidate  func(domain.CandidateInit)
	onConnection func(bool)

	done      chan struct{}
	closeOnce sync.Once
	pumpOnce  sync.Once
}

func (p *Peer) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toDomainDescription(p.pc.LocalDescription()), nil
}

func (p *Peer) AcceptOffer(ctx context.Context, offer domain.SessionDescription) (domain.SessionDescription, error) {
	remote, err := toPionDescription(offer)
	if err != nil {
		return domain.SessionDescription{}, err
	}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return toDomainDescription(p.pc.LocalDescription()), nil
}

func (p *Peer) AcceptAnswer(ctx context.Context, answer domain.SessionDescription) error {
	remote, err := toPionDescription(answer)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(remote); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) AddCandidate(cand domain.CandidateInit) error {
	return p.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

func (p *Peer) OnCandidate(fn func(domain.CandidateInit)) {
	p.mu.Lock()
	p.onCandidate = fn
	p.mu.Unlock()
}

func (p *Peer) OnConnectionChange(fn func(connected bool)) {
	p.mu.Lock()
	p.onConnection = fn
	p.mu.Unlock()
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		err = p.pc.Close()
	})
	return err
}

func (p *Peer) notifyCandidate(cand domain.CandidateInit) {
	p.mu.Lock()
	fn := p.onCandidate
	p.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

func (p *Peer) notifyConnection(connected bool) {
	p.mu.Lock()
	fn := p.onConnection
	p.mu.Unlock()
	if fn != nil {
		fn(connected)
	}
}

const audioFrameInterval = 20 * time.Millisecond

// opusSilence is a canned silent Opus frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// pumpSilence keeps the host's RTP stream alive when no capture device
// feeds the track. Receivers hear silence; RTCP keeps flowing either
// way, which is what the quality service needs.
func (p *Peer) pumpSilence() {
	ticker := time.NewTicker(audioFrameInterval)
	defer ticker.Stop()

	var seq uint16
	var ts uint32
	ssrc := rand.Uint32()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			packet := &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					SequenceNumber: seq,
					Timestamp:      ts,
					SSRC:           ssrc,
				},
				Payload: opusSilence,
			}
			if err := p.audio.WriteRTP(packet); err != nil {
				if !errors.Is(err, io.ErrClosedPipe) {
					p.logger.Debugw("audio write failed", "session", p.session, "error", err)
				}
				return
			}
			seq++
			ts += 960 // 20ms at the 48kHz Opus clock
		}
	}
}

func (p *Peer) drainTrack(track *webrtc.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}

func (p *Peer) readSenderRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		p.quality.Ingest(p.session, packets)
	}
}

func (p *Peer) readReceiverRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		p.quality.Ingest(p.session, packets)
	}
}

func toDomainDescription(desc *webrtc.SessionDescription) domain.SessionDescription {
	if desc == nil {
		return domain.SessionDescription{}
	}
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func toPionDescription(desc domain.SessionDescription) (webrtc.SessionDescription, error) {
	var sdpType webrtc.SDPType
	switch desc.Type {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("sdp type %q: %w", desc.Type, domain.ErrMalformedSignal)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}, nil
}

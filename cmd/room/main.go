package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v3"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/services"
	"orbnet/internal/infrastructure/media"
	"orbnet/internal/infrastructure/presence"
	"orbnet/internal/infrastructure/relay"
	"orbnet/pkg/config"
	"orbnet/pkg/logger"
)

// Headless room client: joins a presence room, runs the orb loop, and
// when a session id is given, takes part in the host/viewer media
// negotiation. Useful for soak-testing a relay without a browser.
func main() {
	var (
		relayURL = flag.String("relay", "http://localhost:8080", "relay base URL")
		room     = flag.String("room", "", "room to join (required)")
		session  = flag.String("session", "", "livestream session id (enables negotiation)")
		role     = flag.String("role", "viewer", "negotiation role: host or viewer")
		name     = flag.String("name", "orbnet-cli", "display name to announce")
	)
	flag.Parse()

	if *room == "" {
		fmt.Fprintln(os.Stderr, "usage: room -room <id> [-session <id> -role host|viewer]")
		os.Exit(2)
	}
	if *role != string(domain.RoleHost) && *role != string(domain.RoleViewer) {
		fmt.Fprintln(os.Stderr, "role must be host or viewer")
		os.Exit(2)
	}

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token, self, err := fetchToken(ctx, *relayURL, *name)
	if err != nil {
		log.Fatalw("failed to obtain token", "error", err)
	}
	log.Infow("authenticated", "participant_id", self.ID)

	channel := presence.NewChannel(*relayURL, domain.RoomID(*room), token, log)
	if err := channel.Connect(ctx); err != nil {
		log.Fatalw("failed to connect presence channel", "room", *room, "error", err)
	}

	relayClient := relay.NewClient(*relayURL, token)

	var iceServers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	mediaConfig := media.Config{ICEServers: iceServers}
	mediaConfig.PortRange.Min = cfg.WebRTC.PortRange.Min
	mediaConfig.PortRange.Max = cfg.WebRTC.PortRange.Max

	metrics := services.NewMetricsService()
	quality := services.NewQualityService(metrics, log)
	peers := media.NewFactory(domain.SessionID(*session), mediaConfig, quality, log)

	roomSession := services.NewRoomSession(services.RoomSessionConfig{
		Room:            domain.RoomID(*room),
		Session:         domain.SessionID(*session),
		Self:            self,
		Role:            domain.SignalRole(*role),
		TickInterval:    cfg.Room.TickInterval,
		PublishInterval: cfg.Room.PublishInterval,
		PollInterval:    cfg.Room.PollInterval,
	}, channel, relayClient, peers, log)
	defer roomSession.Close()

	if *session != "" && *role == string(domain.RoleHost) {
		// The host opens its side as soon as capture is up; viewers
		// answer whatever the poll loop brings in.
		if err := roomSession.MediaReady(ctx); err != nil {
			log.Fatalw("failed to start host negotiation", "error", err)
		}
	}

	log.Infow("joined room", "room", *room, "session", *session, "role", *role)

	if err := roomSession.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalw("room session failed", "error", err)
	}

	log.Info("room session closed")
}

// fetchToken trades a display name for a signed participant token.
func fetchToken(ctx context.Context, baseURL, name string) (string, domain.Participant, error) {
	body, err := json.Marshal(map[string]string{"username": name})
	if err != nil {
		return "", domain.Participant{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", domain.Participant{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", domain.Participant{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", domain.Participant{}, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var out struct {
		Token       string             `json:"token"`
		Participant domain.Participant `json:"participant"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.Participant{}, err
	}
	return out.Token, out.Participant, nil
}

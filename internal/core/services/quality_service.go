package services

import (
	"sync"
	"time"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
)

// LinkGrade is a coarse classification of a negotiated media path.
type LinkGrade string

const (
	LinkGood     LinkGrade = "good"
	LinkDegraded LinkGrade = "degraded"
	LinkPoor     LinkGrade = "poor"
)

type linkThresholds struct {
	FractionLost float64
	Jitter       uint32
	RTT          time.Duration
}

// QualityService turns RTCP receiver reports into per-session link
// quality samples and keeps a graded view of each link. Grades move
// with hysteresis so a single noisy report batch does not flap the
// classification.
type QualityService struct {
	metrics    ports.MetricsRecorder
	logger     *zap.SugaredLogger
	thresholds map[LinkGrade]linkThresholds

	mu     sync.Mutex
	grades map[domain.SessionID]LinkGrade
}

func NewQualityService(metrics ports.MetricsRecorder, logger *zap.SugaredLogger) *QualityService {
	return &QualityService{
		metrics: metrics,
		logger:  logger,
		thresholds: map[LinkGrade]linkThresholds{
			// Jitter bounds are RTP timestamp units on the 48kHz
			// Opus clock: 960 units is 20ms.
			LinkGood: {
				FractionLost: 0.02,
				Jitter:       960,
				RTT:          150 * time.Millisecond,
			},
			LinkDegraded: {
				FractionLost: 0.08,
				Jitter:       3840,
				RTT:          400 * time.Millisecond,
			},
		},
		grades: make(map[domain.SessionID]LinkGrade),
	}
}

// Ingest consumes one batch of RTCP packets read from a media peer,
// records the summarized sample and updates the session's grade.
func (s *QualityService) Ingest(session domain.SessionID, packets []rtcp.Packet) {
	sample, ok := s.summarize(session, packets)
	if !ok {
		return
	}

	s.metrics.RecordLinkQuality(sample)

	s.mu.Lock()
	prev, seen := s.grades[session]
	next := prev
	if !seen {
		next = s.GradeLink(sample)
	} else if s.ShouldDowngrade(prev, sample) {
		next = demoteGrade(prev)
	} else if s.ShouldUpgrade(prev, sample) {
		next = promoteGrade(prev)
	}
	s.grades[session] = next
	s.mu.Unlock()

	if seen && next != prev {
		s.logger.Infow("link grade changed",
			"session", session,
			"from", prev,
			"to", next,
			"fraction_lost", sample.FractionLost,
			"jitter", sample.Jitter,
			"rtt", sample.RTT,
		)
	}
}

func (s *QualityService) summarize(session domain.SessionID, packets []rtcp.Packet) (domain.LinkQuality, bool) {
	var (
		lost    float64
		jitter  uint64
		rtt     time.Duration
		rttObs  int
		reports int
	)

	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				lost += float64(report.FractionLost) / 256.0
				jitter += uint64(report.Jitter)
				reports++

				if report.LastSenderReport != 0 && report.Delay != 0 {
					// Delay since last sender report, in 1/65536
					// second units. Simplified RTT estimate.
					rtt += time.Duration(report.Delay) * time.Second / 65536
					rttObs++
				}
			}

		case *rtcp.SenderReport:
			s.logger.Debugw("sender report",
				"session", session,
				"packets", p.PacketCount,
				"octets", p.OctetCount,
			)

		case *rtcp.TransportLayerNack:
			s.logger.Debugw("nack received",
				"session", session,
				"nacks", len(p.Nacks),
			)

		case *rtcp.PictureLossIndication:
			s.logger.Debugw("pli received", "session", session)
		}
	}

	if reports == 0 {
		return domain.LinkQuality{}, false
	}

	sample := domain.LinkQuality{
		Session:      session,
		FractionLost: lost / float64(reports),
		Jitter:       uint32(jitter / uint64(reports)),
		Reports:      reports,
		Timestamp:    time.Now(),
	}
	if rttObs > 0 {
		sample.RTT = rtt / time.Duration(rttObs)
	}
	return sample, true
}

// GradeLink classifies one sample against the tier thresholds without
// any history. A zero RTT means the reports carried no sender-report
// timing and passes every tier.
func (s *QualityService) GradeLink(q domain.LinkQuality) LinkGrade {
	if s.meetsLinkRequirements(q, s.thresholds[LinkGood]) {
		return LinkGood
	} else if s.meetsLinkRequirements(q, s.thresholds[LinkDegraded]) {
		return LinkDegraded
	}
	return LinkPoor
}

func (s *QualityService) meetsLinkRequirements(q domain.LinkQuality, t linkThresholds) bool {
	return q.FractionLost <= t.FractionLost &&
		q.Jitter <= t.Jitter &&
		q.RTT <= t.RTT
}

func (s *QualityService) ShouldDowngrade(current LinkGrade, q domain.LinkQuality) bool {
	if current == LinkPoor {
		return false
	}

	t := s.thresholds[current]
	return q.FractionLost > t.FractionLost*2 ||
		q.Jitter > t.Jitter*3/2 ||
		q.RTT > t.RTT*3/2
}

func (s *QualityService) ShouldUpgrade(current LinkGrade, q domain.LinkQuality) bool {
	if current == LinkGood {
		return false
	}

	t := s.thresholds[promoteGrade(current)]
	return q.FractionLost <= t.FractionLost*0.8 &&
		q.Jitter <= t.Jitter*4/5 &&
		q.RTT <= t.RTT*4/5
}

// Grade returns the current grade for a session. Links start good
// until reports say otherwise.
func (s *QualityService) Grade(session domain.SessionID) LinkGrade {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grades[session]; ok {
		return g
	}
	return LinkGood
}

// Forget drops the graded state for an ended session.
func (s *QualityService) Forget(session domain.SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grades, session)
}

func demoteGrade(g LinkGrade) LinkGrade {
	if g == LinkGood {
		return LinkDegraded
	}
	return LinkPoor
}

func promoteGrade(g LinkGrade) LinkGrade {
	if g == LinkPoor {
		return LinkDegraded
	}
	return LinkGood
}

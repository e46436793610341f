package domain

import "time"

type RoomMetrics struct {
	Room         RoomID
	Participants int
	EventsIn     int64
	EventsOut    int64
	Timestamp    time.Time
}

type SessionMetrics struct {
	Session        SessionID
	SignalsStored  int
	SignalsFetched int64
	Viewers        int
	Timestamp      time.Time
}

// LinkQuality summarizes RTCP receiver reports for one negotiated
// media path.
type LinkQuality struct {
	Session      SessionID
	FractionLost float64 // 0-1
	Jitter       uint32  // RTP timestamp units
	RTT          time.Duration
	Reports      int
	Timestamp    time.Time
}

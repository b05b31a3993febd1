package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"parley/log"
)

// AgentStateAttribute is the participant attribute LiveKit agents publish
// their conversational state under.
const AgentStateAttribute = "lk.agent.state"

// PeerStats is satisfied by *webrtc.PeerConnection.
type PeerStats interface {
	GetStats() webrtc.StatsReport
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	Token     string // pre-issued token; takes precedence over key/secret

	Room     string // generated when empty
	Identity string // generated when empty
}

type LiveKitOption func(*LiveKit)

// WithMicrophoneTrack publishes track as the local microphone on every
// connect so it can be muted and unmuted.
func WithMicrophoneTrack(track *lksdk.LocalTrack) LiveKitOption {
	return func(l *LiveKit) { l.micTrack = track }
}

// LiveKit implements Session on a LiveKit room.
type LiveKit struct {
	cfg      LiveKitConfig
	micTrack *lksdk.LocalTrack
	events   chan Event

	mu         sync.Mutex
	state      ConnState
	room       *lksdk.Room
	micPub     *lksdk.LocalTrackPublication
	micEnabled bool
	inbound    *receiveStats
	conn       *lkConn
}

// lkConn scopes callbacks to one connection so late events from a torn
// down room are dropped.
type lkConn struct {
	done       chan struct{}
	doneOnce   sync.Once
	finishOnce sync.Once
}

func (c *lkConn) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *lkConn) alive() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func NewLiveKit(cfg LiveKitConfig, opts ...LiveKitOption) *LiveKit {
	l := &LiveKit{
		cfg:        cfg,
		events:     make(chan Event, 128),
		micEnabled: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LiveKit) Events() <-chan Event { return l.events }

func (l *LiveKit) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// RoomName returns the room of the current or last connection.
func (l *LiveKit) RoomName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Room
}

func (l *LiveKit) Identity() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg.Identity
}

func (l *LiveKit) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.state == ConnConnected || l.state == ConnConnecting {
		l.mu.Unlock()
		return nil
	}
	if l.cfg.Room == "" {
		l.cfg.Room = RandomName("voice_assistant_room")
	}
	if l.cfg.Identity == "" {
		l.cfg.Identity = RandomName("voice_assistant_user")
	}
	cfg := l.cfg
	conn := &lkConn{done: make(chan struct{})}
	l.conn = conn
	l.inbound = nil
	l.state = ConnConnecting
	l.mu.Unlock()
	l.emit(conn, Event{Kind: EventConnState, Conn: ConnConnecting})

	if err := ctx.Err(); err != nil {
		l.fail(conn)
		return err
	}

	cb := l.roomCallback(conn)
	var (
		room *lksdk.Room
		err  error
	)
	if cfg.Token != "" {
		room, err = lksdk.ConnectToRoomWithToken(cfg.URL, cfg.Token, cb, lksdk.WithAutoSubscribe(true))
	} else {
		room, err = lksdk.ConnectToRoom(cfg.URL, lksdk.ConnectInfo{
			APIKey:              cfg.APIKey,
			APISecret:           cfg.APISecret,
			RoomName:            cfg.Room,
			ParticipantIdentity: cfg.Identity,
		}, cb, lksdk.WithAutoSubscribe(true))
	}
	if err != nil {
		l.fail(conn)
		return fmt.Errorf("connect to room %s: %w", cfg.Room, err)
	}

	var micPub *lksdk.LocalTrackPublication
	if l.micTrack != nil {
		micPub, err = room.LocalParticipant.PublishTrack(l.micTrack, &lksdk.TrackPublicationOptions{
			Name:   "microphone",
			Source: livekit.TrackSource_MICROPHONE,
		})
		if err != nil {
			room.Disconnect()
			l.fail(conn)
			return fmt.Errorf("publish microphone: %w", err)
		}
	}

	l.mu.Lock()
	if !conn.alive() {
		l.mu.Unlock()
		room.Disconnect()
		return ErrNotConnected
	}
	l.room = room
	l.micPub = micPub
	l.micEnabled = true
	l.state = ConnConnected
	l.mu.Unlock()

	log.SessionStart(cfg.URL, cfg.Room, cfg.Identity)
	l.emit(conn, Event{Kind: EventConnState, Conn: ConnConnected})
	return nil
}

func (l *LiveKit) fail(conn *lkConn) {
	l.mu.Lock()
	if l.conn == conn {
		l.state = ConnDisconnected
	}
	l.mu.Unlock()
	l.finish(conn, "connect_failed")
}

func (l *LiveKit) Disconnect() {
	l.mu.Lock()
	room, conn := l.room, l.conn
	l.room = nil
	l.micPub = nil
	l.inbound = nil
	l.state = ConnDisconnected
	l.mu.Unlock()

	if room != nil {
		room.Disconnect()
	}
	if conn != nil {
		l.finish(conn, "client_initiated")
	}
}

func (l *LiveKit) finish(conn *lkConn, reason string) {
	conn.finishOnce.Do(func() {
		l.emit(conn, Event{Kind: EventDisconnected, Reason: reason})
		conn.close()
	})
}

func (l *LiveKit) MicrophoneEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.micEnabled
}

func (l *LiveKit) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != ConnConnected {
		return ErrNotConnected
	}
	if l.micPub != nil {
		l.micPub.SetMuted(!enabled)
	}
	l.micEnabled = enabled
	return nil
}

func (l *LiveKit) Stats(_ context.Context) (Stats, error) {
	l.mu.Lock()
	state, inbound, room := l.state, l.inbound, l.room
	l.mu.Unlock()
	if state != ConnConnected || room == nil {
		return Stats{}, ErrNotConnected
	}

	// agent audio arrives on the subscriber transport, so its selected
	// candidate pair carries the RTT that matters
	var ps PeerStats
	if pc := room.LocalParticipant.GetSubscriberPeerConnection(); pc != nil {
		ps = pc
	}
	return composeStats(ps, inbound)
}

// composeStats merges the peer connection report with receive stats
// measured on the agent's audio track. Track stats win for packets.
func composeStats(ps PeerStats, inbound *receiveStats) (Stats, error) {
	var st Stats
	if ps != nil {
		st = StatsFromReport(ps.GetStats())
	}
	if inbound != nil {
		if recv, lost, jitter, ok := inbound.Snapshot(); ok {
			st.PacketsReceived, st.PacketsLost, st.HasPackets = recv, lost, true
			if !st.HasJitter {
				st.Jitter, st.HasJitter = jitter, true
			}
		}
	}
	if !st.HasRTT && !st.HasJitter && !st.HasPackets {
		return Stats{}, ErrStatsUnavailable
	}
	return st, nil
}

// StatsFromReport extracts RTT from the nominated, succeeded candidate
// pair and jitter/packet counters from inbound audio RTP streams.
func StatsFromReport(report webrtc.StatsReport) Stats {
	var st Stats
	for _, s := range report {
		switch v := s.(type) {
		case webrtc.ICECandidatePairStats:
			if v.Nominated && v.State == webrtc.StatsICECandidatePairStateSucceeded && v.CurrentRoundTripTime > 0 {
				st.RTT = time.Duration(v.CurrentRoundTripTime * float64(time.Second))
				st.HasRTT = true
			}
		case webrtc.InboundRTPStreamStats:
			if v.Kind != "audio" {
				continue
			}
			st.PacketsReceived += uint64(v.PacketsReceived)
			st.PacketsLost += int64(v.PacketsLost)
			st.HasPackets = true
			j := time.Duration(v.Jitter * float64(time.Second))
			if !st.HasJitter || j > st.Jitter {
				st.Jitter = j
			}
			st.HasJitter = true
		}
	}
	return st
}

func (l *LiveKit) roomCallback(conn *lkConn) *lksdk.RoomCallback {
	cb := lksdk.NewRoomCallback()
	cb.OnDisconnected = func() {
		l.remoteDisconnect(conn, "remote")
	}
	cb.OnDisconnectedWithReason = func(reason lksdk.DisconnectionReason) {
		l.remoteDisconnect(conn, string(reason))
	}
	cb.OnReconnecting = func() {
		l.setState(conn, ConnReconnecting)
	}
	cb.OnReconnected = func() {
		l.setState(conn, ConnConnected)
	}
	cb.ParticipantCallback.OnTranscriptionReceived = func(segments []*lksdk.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
		if len(segments) == 0 {
			return
		}
		_, local := p.(*lksdk.LocalParticipant)
		out := make([]Segment, 0, len(segments))
		for _, s := range segments {
			if s == nil {
				continue
			}
			out = append(out, Segment{ID: s.ID, Text: s.Text, Final: s.Final, Language: s.Language})
		}
		l.emit(conn, Event{Kind: EventSegments, Segments: out, Local: local})
	}
	cb.ParticipantCallback.OnAttributesChanged = func(changed map[string]string, p lksdk.Participant) {
		if _, local := p.(*lksdk.LocalParticipant); local {
			return
		}
		if state, ok := changed[AgentStateAttribute]; ok {
			l.emit(conn, Event{Kind: EventAgentState, AgentState: state})
		}
	}
	cb.ParticipantCallback.OnTrackSubscribed = func(track *webrtc.TrackRemote, _ *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if state, ok := rp.Attributes()[AgentStateAttribute]; ok {
			l.emit(conn, Event{Kind: EventAgentState, AgentState: state})
		}
		rs := newReceiveStats(track.Codec().ClockRate)
		l.mu.Lock()
		if l.conn == conn {
			l.inbound = rs
		}
		l.mu.Unlock()
		go readInbound(conn, track, rs)
	}
	return cb
}

// readInbound consumes the agent's audio RTP stream for receive stats.
// Payloads are discarded; decoding is not this client's concern.
func readInbound(conn *lkConn, track *webrtc.TrackRemote, rs *receiveStats) {
	for conn.alive() {
		_ = track.SetReadDeadline(time.Now().Add(2 * time.Second))
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if strings.Contains(err.Error(), "timeout") {
				continue
			}
			return
		}
		rs.Update(pkt, time.Now())
	}
}

func (l *LiveKit) remoteDisconnect(conn *lkConn, reason string) {
	l.mu.Lock()
	if l.conn == conn {
		l.room = nil
		l.micPub = nil
		l.inbound = nil
		l.state = ConnDisconnected
	}
	l.mu.Unlock()
	l.finish(conn, reason)
}

func (l *LiveKit) setState(conn *lkConn, s ConnState) {
	l.mu.Lock()
	if l.conn != conn {
		l.mu.Unlock()
		return
	}
	l.state = s
	l.mu.Unlock()
	l.emit(conn, Event{Kind: EventConnState, Conn: s})
}

func (l *LiveKit) emit(conn *lkConn, ev Event) {
	if !conn.alive() {
		return
	}
	select {
	case l.events <- ev:
	case <-conn.done:
	case <-time.After(time.Second):
		log.Warnf("transport event dropped: kind=%d", ev.Kind)
	}
}

// RandomName returns prefix_NNNN with four random digits.
func RandomName(prefix string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%04d", prefix, binary.BigEndian.Uint32(id[:4])%10000)
}

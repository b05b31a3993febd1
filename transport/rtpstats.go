package transport

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// receiveStats keeps RFC 3550 receiver statistics for one inbound RTP
// stream: extended highest sequence, packets received, and interarrival
// jitter.
type receiveStats struct {
	mu        sync.Mutex
	clockRate uint32

	started  bool
	epoch    time.Time
	baseSeq  uint16
	maxSeq   uint16
	cycles   uint32
	received uint64

	hasTransit  bool
	lastTransit int32
	jitter      float64 // timestamp units
}

func newReceiveStats(clockRate uint32) *receiveStats {
	if clockRate == 0 {
		clockRate = 48000
	}
	return &receiveStats{clockRate: clockRate}
}

func (r *receiveStats) Update(pkt *rtp.Packet, arrival time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := pkt.SequenceNumber
	if !r.started {
		r.started = true
		r.epoch = arrival
		r.baseSeq = seq
		r.maxSeq = seq
	} else if delta := seq - r.maxSeq; delta != 0 && delta < 0x8000 {
		if seq < r.maxSeq {
			r.cycles++
		}
		r.maxSeq = seq
	}
	r.received++

	arrivalTS := uint32(arrival.Sub(r.epoch).Seconds() * float64(r.clockRate))
	transit := int32(arrivalTS - pkt.Timestamp)
	if r.hasTransit {
		d := transit - r.lastTransit
		if d < 0 {
			d = -d
		}
		r.jitter += (float64(d) - r.jitter) / 16
	}
	r.lastTransit = transit
	r.hasTransit = true
}

func (r *receiveStats) Snapshot() (received uint64, lost int64, jitter time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return 0, 0, 0, false
	}
	expected := uint64(r.cycles)<<16 + uint64(r.maxSeq) - uint64(r.baseSeq) + 1
	lost = int64(expected) - int64(r.received)
	jitter = time.Duration(r.jitter / float64(r.clockRate) * float64(time.Second))
	return r.received, lost, jitter, true
}

package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spacedrift/internal/net"
)

type MatchConfig struct {
	MinPlayers         int
	MaxPlayers         int
	HostConfirmTimeout time.Duration
}

type QueueEntry struct {
	PeerID     string
	Peer       Peer
	Meta       net.Meta
	EnqueuedAt time.Time
}

// PendingMatch is a proposed group waiting for its host to confirm.
// Members[0] is the candidate host.
type PendingMatch struct {
	HostID    string
	RoomID    string
	Members   []*QueueEntry
	CreatedAt time.Time

	confirmed bool
	timer     *time.Timer
}

func (pm *PendingMatch) peerIDs() []string {
	ids := make([]string, 0, len(pm.Members))
	for _, e := range pm.Members {
		ids = append(ids, e.PeerID)
	}
	return ids
}

func (pm *PendingMatch) indexOf(pred func(*QueueEntry) bool) int {
	for i, e := range pm.Members {
		if pred(e) {
			return i
		}
	}
	return -1
}

// Matchmaker owns the FIFO queue and the pending matches, keyed by host id.
// All sends happen with mm.mu held so every peer observes queue transitions
// in order.
type Matchmaker struct {
	mu      sync.Mutex
	queue   []*QueueEntry
	pending map[string]*PendingMatch
	closed  bool

	cfg       MatchConfig
	logger    *zap.Logger
	now       func() time.Time
	newRoomID func() string
}

func NewMatchmaker(cfg MatchConfig, logger *zap.Logger) *Matchmaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinPlayers < 2 {
		cfg.MinPlayers = 2
	}
	if cfg.MaxPlayers < cfg.MinPlayers {
		cfg.MaxPlayers = cfg.MinPlayers
	}
	return &Matchmaker{
		pending:   make(map[string]*PendingMatch),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		newRoomID: func() string { return "match_" + uuid.NewString() },
	}
}

// Find appends the peer to the queue and forms matches while enough peers
// wait. A peer already queued or negotiating gets ErrAlreadyQueued.
func (mm *Matchmaker) Find(peerID string, peer Peer, meta net.Meta) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.queueIndexLocked(peerID) >= 0 || mm.pendingOfLocked(peerID) != nil {
		return ErrAlreadyQueued
	}
	mm.queue = append(mm.queue, &QueueEntry{
		PeerID:     peerID,
		Peer:       peer,
		Meta:       meta,
		EnqueuedAt: mm.now(),
	})
	mm.logger.Info("peer queued", zap.String("peer", peerID), zap.Int("queue", len(mm.queue)))

	mm.formLocked()
	return nil
}

// formLocked must be called with mm.mu held.
func (mm *Matchmaker) formLocked() {
	for !mm.closed && len(mm.queue) >= mm.cfg.MinPlayers {
		n := len(mm.queue)
		if n > mm.cfg.MaxPlayers {
			n = mm.cfg.MaxPlayers
		}
		group := make([]*QueueEntry, n)
		copy(group, mm.queue[:n])
		mm.queue = append(mm.queue[:0], mm.queue[n:]...)

		pm := &PendingMatch{
			HostID:    group[0].PeerID,
			RoomID:    mm.newRoomID(),
			Members:   group,
			CreatedAt: mm.now(),
		}
		mm.pending[pm.HostID] = pm

		send(group[0].Peer, &net.MakeHost{RoomID: pm.RoomID, Peers: pm.peerIDs()})
		for _, e := range group[1:] {
			send(e.Peer, &net.AwaitHost{HostID: pm.HostID})
		}
		pm.timer = time.AfterFunc(mm.cfg.HostConfirmTimeout, func() { mm.expire(pm) })

		mm.logger.Info("match proposed",
			zap.String("host", pm.HostID), zap.String("room", pm.RoomID), zap.Int("size", len(group)))
	}
}

// expire fires when the host did not confirm in time. It is a no-op once
// the match was confirmed, cancelled or replaced.
func (mm *Matchmaker) expire(pm *PendingMatch) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.pending[pm.HostID] != pm || pm.confirmed {
		return
	}
	delete(mm.pending, pm.HostID)

	for _, e := range pm.Members[1:] {
		mm.queue = append(mm.queue, e)
		send(e.Peer, &net.MatchTimeout{})
	}
	mm.logger.Info("match timed out", zap.String("host", pm.HostID), zap.Int("requeued", len(pm.Members)-1))

	mm.formLocked()
}

// IsPendingHost reports whether peerID is the candidate host of an
// unconfirmed match.
func (mm *Matchmaker) IsPendingHost(peerID string) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	pm, ok := mm.pending[peerID]
	return ok && !pm.confirmed
}

// HostReady confirms the host's match. Non-hosts get MATCH_FOUND and the host
// gets HOST_CONFIRMED, both naming roomID (or the proposed id when empty).
func (mm *Matchmaker) HostReady(hostID string, peer Peer, roomID string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	pm, ok := mm.pending[hostID]
	if !ok || pm.confirmed {
		return ErrNoPendingMatch
	}
	if pm.Members[0].Peer != peer {
		return ErrNotHost
	}
	pm.confirmed = true
	pm.timer.Stop()
	delete(mm.pending, hostID)

	if roomID == "" {
		roomID = pm.RoomID
	}
	for _, e := range pm.Members[1:] {
		send(e.Peer, &net.MatchFound{RoomID: roomID, HostID: hostID})
	}
	send(pm.Members[0].Peer, &net.HostConfirmed{RoomID: roomID, Peers: pm.peerIDs()})

	mm.logger.Info("match confirmed", zap.String("host", hostID), zap.String("room", roomID))
	return nil
}

// Cancel withdraws peerID from the queue or from its pending match. Only the
// connection that queued the peer may cancel it.
func (mm *Matchmaker) Cancel(peerID string, peer Peer) bool {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if i := mm.queueIndexLocked(peerID); i >= 0 {
		if mm.queue[i].Peer != peer {
			return false
		}
		mm.queue = append(mm.queue[:i], mm.queue[i+1:]...)
		mm.logger.Info("peer left queue", zap.String("peer", peerID), zap.Int("queue", len(mm.queue)))
		return true
	}

	pm := mm.pendingOfLocked(peerID)
	if pm == nil {
		return false
	}
	i := pm.indexOf(func(e *QueueEntry) bool { return e.PeerID == peerID })
	if pm.Members[i].Peer != peer {
		return false
	}
	mm.collapseLocked(pm, i, i != 0)
	mm.formLocked()
	return true
}

// Disconnect drops every queue entry and pending membership held by peer.
func (mm *Matchmaker) Disconnect(peer Peer) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	kept := mm.queue[:0]
	for _, e := range mm.queue {
		if e.Peer != peer {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(mm.queue); i++ {
		mm.queue[i] = nil
	}
	mm.queue = kept

	for _, pm := range mm.pendingListLocked() {
		if i := pm.indexOf(func(e *QueueEntry) bool { return e.Peer == peer }); i >= 0 {
			mm.collapseLocked(pm, i, false)
		}
	}
	mm.formLocked()
}

// collapseLocked tears pm down after member i withdrew and requeues every
// remaining member in match order. With notifyHostOnly only the host hears
// about it; otherwise every remaining member receives PEER_CANCELLED.
func (mm *Matchmaker) collapseLocked(pm *PendingMatch, i int, notifyHostOnly bool) {
	gone := pm.Members[i]
	pm.timer.Stop()
	delete(mm.pending, pm.HostID)

	notice := &net.PeerCancelled{PeerID: gone.PeerID}
	for j, e := range pm.Members {
		if j == i {
			continue
		}
		if !notifyHostOnly || j == 0 {
			send(e.Peer, notice)
		}
		mm.queue = append(mm.queue, e)
	}
	mm.logger.Info("pending match cancelled",
		zap.String("host", pm.HostID), zap.String("peer", gone.PeerID), zap.Int("requeued", len(pm.Members)-1))
}

func (mm *Matchmaker) queueIndexLocked(peerID string) int {
	for i, e := range mm.queue {
		if e.PeerID == peerID {
			return i
		}
	}
	return -1
}

func (mm *Matchmaker) pendingOfLocked(peerID string) *PendingMatch {
	for _, pm := range mm.pending {
		if pm.indexOf(func(e *QueueEntry) bool { return e.PeerID == peerID }) >= 0 {
			return pm
		}
	}
	return nil
}

func (mm *Matchmaker) pendingListLocked() []*PendingMatch {
	out := make([]*PendingMatch, 0, len(mm.pending))
	for _, pm := range mm.pending {
		out = append(out, pm)
	}
	return out
}

// Queue returns the queued peer ids, oldest first.
func (mm *Matchmaker) Queue() []string {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	ids := make([]string, 0, len(mm.queue))
	for _, e := range mm.queue {
		ids = append(ids, e.PeerID)
	}
	return ids
}

func (mm *Matchmaker) QueueLen() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.queue)
}

func (mm *Matchmaker) PendingCount() int {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return len(mm.pending)
}

// Pending returns a copy of the unconfirmed match hosted by hostID.
func (mm *Matchmaker) Pending(hostID string) (PendingMatch, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	pm, ok := mm.pending[hostID]
	if !ok {
		return PendingMatch{}, false
	}
	cp := PendingMatch{
		HostID:    pm.HostID,
		RoomID:    pm.RoomID,
		Members:   append([]*QueueEntry(nil), pm.Members...),
		CreatedAt: pm.CreatedAt,
	}
	return cp, true
}

// Close stops every deadline timer. Later calls keep working but no new
// matches are formed.
func (mm *Matchmaker) Close() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.closed = true
	for _, pm := range mm.pending {
		pm.timer.Stop()
	}
}

package client

import (
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"spacedrift/internal/game"
	"spacedrift/internal/net"
)

const (
	lerpRate      = 20.0
	snapDistance  = 300.0
	velocityDecay = 0.9
	stateInterval = 50 * time.Millisecond

	MaxHealth        = 100.0
	projectileDamage = 15.0
	projectileSpeed  = 14.0
	projectileLife   = 2.0

	DefaultWeapon = "blaster"
	defaultAmmo   = 30
)

// EntityState is the "player" payload of GAME_STATE.
type EntityState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Angle  float64 `json:"angle"`
	Health float64 `json:"health"`
	Alive  bool    `json:"alive"`
	Name   string  `json:"name,omitempty"`
	Weapon string  `json:"weapon,omitempty"`
	Ammo   int     `json:"ammo"`
	Kills  int     `json:"kills"`
	Deaths int     `json:"deaths"`
}

// RemoteEntity is another player as this client sees it. Position and angle
// chase the last reported target.
type RemoteEntity struct {
	ID     string
	Name   string
	Avatar string
	Weapon string
	Ammo   int
	X, Y   float64
	VX, VY float64
	Angle  float64
	Health float64
	Alive  bool
	Kills  int
	Deaths int

	TargetX, TargetY, TargetAngle float64
}

func (e *RemoteEntity) circle() game.Circle {
	return game.Circle{X: e.X, Y: e.Y, Radius: game.ShipRadius}
}

// Pickup is the SPAWN_PICKUP payload.
type Pickup struct {
	ID   string  `json:"id,omitempty"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type SoundEvent struct {
	PlayerID string
	Sound    string
	Volume   float64
}

// LocalPlayer is the ship this client simulates and reports.
type LocalPlayer struct {
	game.Body
	Angle  float64
	Health float64
	Alive  bool
	Weapon string
	Ammo   int
	Kills  int
	Deaths int
}

// Reconciler merges hub messages into the local view of a match and runs
// the per-frame simulation. Health only drops on an authoritative DAMAGE
// message; a projectile that visually hits the local ship just disappears.
type Reconciler struct {
	send   func(net.Message) error
	logger *zap.Logger
	now    func() time.Time

	// OnSound receives PLAY_SOUND relays.
	OnSound func(SoundEvent)

	mu          sync.Mutex
	localID     string
	name        string
	roomID      string
	host        bool
	local       LocalPlayer
	remotes     map[string]*RemoteEntity
	projectiles []*game.Projectile
	pickups     []Pickup
	timeLeft    float64
	lastState   time.Time
	shots       int
}

func NewReconciler(localID, name string, send func(net.Message) error, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		send:    send,
		logger:  logger,
		now:     time.Now,
		localID: localID,
		name:    net.DisplayName(name),
		remotes: make(map[string]*RemoteEntity),
	}
	r.respawn(0)
	return r
}

// Enter resets the world for a new room.
func (r *Reconciler) Enter(roomID string, host bool, spawn int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomID = roomID
	r.host = host
	r.remotes = make(map[string]*RemoteEntity)
	r.projectiles = nil
	r.pickups = nil
	r.respawn(spawn)
}

func (r *Reconciler) respawn(spawn int) {
	x, y := game.Spawn(spawn)
	r.local.Body = game.Body{Circle: game.Circle{X: x, Y: y, Radius: game.ShipRadius}}
	r.local.Health = MaxHealth
	r.local.Alive = true
	r.local.Weapon = DefaultWeapon
	r.local.Ammo = defaultAmmo
}

// SetWeapon switches the local weapon and refills its ammo.
func (r *Reconciler) SetWeapon(weapon string, ammo int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local.Weapon = weapon
	r.local.Ammo = ammo
}

// Respawn revives the local ship at the given spawn slot.
func (r *Reconciler) Respawn(spawn int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.respawn(spawn)
}

func (r *Reconciler) SetHost(host bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host = host
}

// Apply merges one hub message.
func (r *Reconciler) Apply(msg net.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case *net.GameStateRelay:
		if m.PlayerID == r.localID {
			return
		}
		var st EntityState
		if err := json.Unmarshal(m.Player, &st); err != nil {
			r.logger.Debug("bad game state", zap.String("player", m.PlayerID), zap.Error(err))
			return
		}
		r.updateRemote(m.PlayerID, st)

	case *net.PlayerList:
		for i, p := range m.Players {
			r.addRemote(p, i)
		}

	case *net.PlayerJoined:
		r.addRemote(m.Player, len(r.remotes)+1)

	case *net.ProjectilesRelay:
		var shots []*game.Projectile
		if err := json.Unmarshal(m.Projectiles, &shots); err != nil {
			r.logger.Debug("bad projectiles", zap.String("player", m.PlayerID), zap.Error(err))
			return
		}
		for _, p := range shots {
			// The relay names the sender; trust that over the payload.
			p.OwnerID = m.PlayerID
			if p.Life <= 0 {
				p.Life = projectileLife
			}
			r.projectiles = append(r.projectiles, p)
		}

	case *net.DamageReport:
		r.takeDamage(m.AttackerID, m.Damage)

	case *net.PlayerDeathNotice:
		if e, ok := r.remotes[m.VictimID]; ok {
			e.Alive = false
			e.Deaths++
		}
		if m.KillerID == r.localID && m.VictimID != r.localID {
			r.local.Kills++
		} else if e, ok := r.remotes[m.KillerID]; ok {
			e.Kills++
		}

	case *net.PickupSpawned:
		var p Pickup
		if err := json.Unmarshal(m.Pickup, &p); err != nil {
			return
		}
		for _, existing := range r.pickups {
			if existing.X == p.X && existing.Y == p.Y {
				return
			}
		}
		r.pickups = append(r.pickups, p)

	case *net.TimerUpdate:
		if !r.host {
			r.timeLeft = m.TimeLeft
		}

	case *net.SoundPlayed:
		if r.OnSound != nil && m.PlayerID != r.localID {
			r.OnSound(SoundEvent{PlayerID: m.PlayerID, Sound: m.Sound, Volume: m.Volume})
		}

	case *net.PlayerLeft:
		delete(r.remotes, m.PlayerID)
		if m.HostID != "" {
			r.host = m.HostID == r.localID
		}
	}
}

// addRemote creates the entity for a room member announced before its first
// GAME_STATE. It is parked on its spawn slot until the state arrives.
func (r *Reconciler) addRemote(p net.PlayerInfo, spawn int) {
	if p.ID == "" || p.ID == r.localID {
		return
	}
	if _, ok := r.remotes[p.ID]; ok {
		return
	}
	x, y := game.Spawn(spawn)
	e := &RemoteEntity{
		ID:      p.ID,
		Name:    net.DisplayName(p.Name),
		Weapon:  DefaultWeapon,
		X:       x,
		Y:       y,
		TargetX: x,
		TargetY: y,
		Health:  MaxHealth,
		Alive:   true,
	}
	if p.Avatar != nil {
		e.Avatar = *p.Avatar
	}
	r.remotes[p.ID] = e
}

func (r *Reconciler) updateRemote(id string, st EntityState) {
	e, ok := r.remotes[id]
	if !ok {
		e = &RemoteEntity{ID: id, Name: net.DefaultName, Weapon: DefaultWeapon, X: st.X, Y: st.Y, Angle: st.Angle}
		r.remotes[id] = e
	}
	e.TargetX, e.TargetY, e.TargetAngle = st.X, st.Y, st.Angle
	e.VX, e.VY = st.VX, st.VY
	e.Health = st.Health
	e.Alive = st.Alive
	if st.Name != "" {
		e.Name = net.DisplayName(st.Name)
	}
	if st.Weapon != "" {
		e.Weapon = st.Weapon
	}
	e.Ammo = st.Ammo
	e.Kills, e.Deaths = st.Kills, st.Deaths
}

func (r *Reconciler) takeDamage(attackerID string, damage float64) {
	if !r.local.Alive || damage <= 0 {
		return
	}
	r.local.Health -= damage
	if r.local.Health > 0 {
		return
	}
	r.local.Health = 0
	r.local.Alive = false
	r.local.Deaths++
	r.emit(&net.PlayerDeathMessage{RoomID: r.roomID, VictimID: r.localID, KillerID: attackerID})
}

// Tick advances the simulation by dt seconds.
func (r *Reconciler) Tick(dt float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := lerpRate * dt
	if t > 1 {
		t = 1
	}
	for _, e := range r.remotes {
		if game.Distance(e.X, e.Y, e.TargetX, e.TargetY) > snapDistance {
			e.X, e.Y = e.TargetX, e.TargetY
		} else {
			e.X += (e.TargetX - e.X) * t
			e.Y += (e.TargetY - e.Y) * t
		}
		e.Angle = game.WrapAngle(e.Angle + game.AngleDelta(e.Angle, e.TargetAngle)*t)
		e.VX *= velocityDecay
		e.VY *= velocityDecay
	}

	if r.local.Alive {
		r.local.Step(dt)
	}

	kept := r.projectiles[:0]
	for _, p := range r.projectiles {
		if p.Advance(dt) && !r.collide(p) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(r.projectiles); i++ {
		r.projectiles[i] = nil
	}
	r.projectiles = kept

	if r.host && r.timeLeft > 0 {
		r.timeLeft -= dt
		if r.timeLeft < 0 {
			r.timeLeft = 0
		}
	}
}

// collide reports whether p hit something and must be removed. Only the
// owner's client reports the hit as DAMAGE.
func (r *Reconciler) collide(p *game.Projectile) bool {
	shot := p.Circle()
	if p.OwnerID != r.localID && r.local.Alive &&
		game.CirclesOverlap(shot, game.Circle{X: r.local.X, Y: r.local.Y, Radius: game.ShipRadius}) {
		return true
	}
	for _, e := range r.remotes {
		if e.ID == p.OwnerID || !e.Alive || !game.CirclesOverlap(shot, e.circle()) {
			continue
		}
		if p.OwnerID == r.localID {
			r.emit(&net.DamageMessage{
				RoomID:    r.roomID,
				PlayerID:  r.localID,
				TargetID:  e.ID,
				Damage:    p.Damage,
				Timestamp: r.now().UnixMilli(),
			})
		}
		return true
	}
	return false
}

// Fire spawns a local projectile along the ship's facing and relays it.
func (r *Reconciler) Fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.local.Alive || r.local.Ammo <= 0 {
		return
	}

	r.local.Ammo--
	r.shots++
	dx, dy := direction(r.local.Angle)
	p := &game.Projectile{
		ID:      r.localID + "-" + strconv.Itoa(r.shots),
		OwnerID: r.localID,
		Weapon:  r.local.Weapon,
		X:       r.local.X + dx*(game.ShipRadius+game.ProjectileRadius+1),
		Y:       r.local.Y + dy*(game.ShipRadius+game.ProjectileRadius+1),
		VX:      dx*projectileSpeed + r.local.VX,
		VY:      dy*projectileSpeed + r.local.VY,
		Angle:   r.local.Angle,
		Damage:  projectileDamage,
		Life:    projectileLife,
	}
	r.projectiles = append(r.projectiles, p)

	data, err := json.Marshal([]*game.Projectile{p})
	if err != nil {
		return
	}
	r.emit(&net.ProjectilesMessage{RoomID: r.roomID, PlayerID: r.localID, Projectiles: data})
	r.emit(&net.PlaySoundMessage{RoomID: r.roomID, PlayerID: r.localID, Sound: "shoot", Volume: 0.6})
}

// Thrust accelerates the local ship along its facing.
func (r *Reconciler) Thrust(turn, accel float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.local.Alive {
		return
	}
	r.local.Angle = game.WrapAngle(r.local.Angle + turn)
	dx, dy := direction(r.local.Angle)
	r.local.VX += dx * accel
	r.local.VY += dy * accel
	r.local.CapSpeed()
}

// ReportState sends GAME_STATE at most every 50ms. It reports whether a
// frame went out.
func (r *Reconciler) ReportState() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.roomID == "" || now.Sub(r.lastState) < stateInterval {
		return false
	}
	r.lastState = now

	data, err := json.Marshal(EntityState{
		X: r.local.X, Y: r.local.Y, VX: r.local.VX, VY: r.local.VY,
		Angle:  r.local.Angle,
		Health: r.local.Health,
		Alive:  r.local.Alive,
		Name:   r.name,
		Weapon: r.local.Weapon,
		Ammo:   r.local.Ammo,
		Kills:  r.local.Kills,
		Deaths: r.local.Deaths,
	})
	if err != nil {
		return false
	}
	r.emit(&net.GameStateMessage{RoomID: r.roomID, PlayerID: r.localID, Player: data})
	return true
}

// StartTimer sets the match clock. Only the host broadcasts it.
func (r *Reconciler) StartTimer(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeLeft = seconds
}

// ReportTimer relays the host's clock.
func (r *Reconciler) ReportTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.host || r.roomID == "" {
		return
	}
	r.emit(&net.MatchTimerMessage{RoomID: r.roomID, PeerID: r.localID, TimeLeft: r.timeLeft})
}

func direction(angle float64) (float64, float64) {
	return math.Cos(angle), math.Sin(angle)
}

func (r *Reconciler) emit(msg net.Message) {
	if r.send == nil || r.roomID == "" {
		return
	}
	if err := r.send(msg); err != nil {
		r.logger.Debug("send failed", zap.String("type", msg.MessageType()), zap.Error(err))
	}
}

// Snapshot is a copy of the world for drawing.
type Snapshot struct {
	Local       LocalPlayer
	Remotes     []RemoteEntity
	Projectiles []game.Projectile
	Pickups     []Pickup
	TimeLeft    float64
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Local:    r.local,
		Pickups:  append([]Pickup(nil), r.pickups...),
		TimeLeft: r.timeLeft,
	}
	for _, e := range r.remotes {
		s.Remotes = append(s.Remotes, *e)
	}
	for _, p := range r.projectiles {
		s.Projectiles = append(s.Projectiles, *p)
	}
	return s
}

func (r *Reconciler) Remote(id string) (RemoteEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.remotes[id]
	if !ok {
		return RemoteEntity{}, false
	}
	return *e, true
}

func (r *Reconciler) Local() LocalPlayer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

package replication

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Dastari/sidereal-v3/infrastructure/config"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/infrastructure/metrics"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/netproto"
	"github.com/Dastari/sidereal-v3/internal/persistence"
	"github.com/Dastari/sidereal-v3/internal/physics"
)

// Dirty-delta thresholds: an entity enters the dirty delta only when its
// tracked fields moved past these since the last report.
const (
	dirtyPositionM    = 0.05
	dirtyVelocityMps  = 0.01
	dirtyHealthPoints = 0.1
)

type reportedState struct {
	position game.Vec3
	velocity game.Vec3
	health   float64
	valid    bool
}

// Server is the authoritative simulation and replication process: a single
// deterministic fixed-tick loop owning the entity graph, with background
// readers feeding it through channels consumed at tick boundaries.
type Server struct {
	cfg     *config.ReplicationConfig
	log     *logging.Logger
	metrics *metrics.Metrics

	endpoint *netproto.Endpoint
	sessions *SessionTable

	store   *persistence.Store
	pending *persistence.PendingState

	index *WorldIndex
	phys  *physics.World

	jwtSecret []byte

	tick           uint64
	lastReported   map[string]reportedState
	lastPersistAt  time.Time
	lastSnapshotAt time.Time

	// spawnCh carries starter-world deltas from the bootstrap listener into
	// the simulation loop.
	spawnCh chan game.WorldStateDelta
}

// NewServer assembles a replication server. store may be nil when
// persistence was unavailable at startup: the server logs and proceeds with
// an empty known-entity cache.
func NewServer(cfg *config.ReplicationConfig, log *logging.Logger, m *metrics.Metrics, endpoint *netproto.Endpoint, store *persistence.Store) *Server {
	s := &Server{
		cfg:          cfg,
		log:          log,
		metrics:      m,
		endpoint:     endpoint,
		sessions:     NewSessionTable(),
		store:        store,
		pending:      persistence.NewPendingState(),
		index:        NewWorldIndex(),
		phys:         physics.NewWorld(),
		jwtSecret:    []byte(cfg.JWTSecret),
		lastReported: make(map[string]reportedState),
		spawnCh:      make(chan game.WorldStateDelta, 64),
	}
	endpoint.Dropped = func(reason string) {
		m.DatagramsDropped.WithLabelValues(reason).Inc()
	}
	return s
}

// Hydrate loads the persisted graph and rebuilds the simulation world.
// Persistence failures log and leave the world empty.
func (s *Server) Hydrate(ctx context.Context) {
	if s.store == nil {
		s.log.Warn("persistence unavailable; starting with empty world")
		return
	}
	if err := s.store.EnsureSchema(ctx); err != nil {
		s.log.WithError(err).Warn("hydration skipped; schema ensure failed")
		return
	}
	records, err := s.store.LoadGraphRecords(ctx)
	if err != nil {
		s.log.WithError(err).Warn("hydration skipped; graph load failed")
		return
	}
	if err := s.pending.HydrateKnownEntityIDs(ctx, s.store); err != nil {
		s.log.WithError(err).Warn("known-entity hydration failed; starting with empty cache")
	}
	s.index = HydrateWorld(records, s.phys, s.log)
	s.metrics.SimulatedBodies.Set(float64(s.phys.Len()))
	s.log.WithField("entities", len(records)).Info("hydrated graph into simulation world")
}

// SpawnStarterWorld queues a starter-world delta for live spawning at the
// next tick boundary. Called from the bootstrap listener goroutine.
func (s *Server) SpawnStarterWorld(delta game.WorldStateDelta) {
	select {
	case s.spawnCh <- delta:
	default:
		s.log.Warn("spawn queue full; dropping starter-world spawn")
	}
}

// Run drives the fixed-tick simulation until the context is canceled
func (s *Server) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / s.cfg.TickHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	now := time.Now()
	s.lastPersistAt = now.Add(-s.cfg.PersistInterval)
	s.lastSnapshotAt = now

	s.log.WithField("tick_hz", s.cfg.TickHz).Info("replication simulation loop started")
	for {
		select {
		case <-ctx.Done():
			s.finalFlush()
			return ctx.Err()
		case tickTime := <-ticker.C:
			started := time.Now()
			s.Step(ctx, tickTime, interval.Seconds())
			s.metrics.TickDuration.Observe(time.Since(started).Seconds())
		}
	}
}

// Step advances the world by exactly one tick. Exported for tests; the
// ordering here is the contract from the simulation design.
func (s *Server) Step(ctx context.Context, now time.Time, dt float64) {
	s.tick++

	s.ingestNetwork(now)
	s.ingestSpawns()

	// Action pipeline: capabilities gate, then flight translation, then
	// mass roll-up, then engine thrust.
	dropped := game.ValidateActionCapabilities(s.index.Entities, s.log)
	if dropped > 0 {
		s.metrics.ActionsDropped.WithLabelValues("unsupported").Add(float64(dropped))
	}
	game.ProcessFlightActions(s.index.Entities)
	game.RecomputeTotalMass(s.index.Entities, s.phys)

	bodies := make(map[uuid.UUID]game.ForceBody)
	for _, e := range s.index.Entities {
		if body, ok := s.phys.Body(e.Guid); ok {
			bodies[e.Guid] = body
		}
	}
	stats := game.ApplyEngineThrust(dt, s.index.Entities, bodies)
	if stats.ExhaustedEngines > 0 {
		s.metrics.EnginesExhausted.Add(float64(stats.ExhaustedEngines))
	}

	s.phys.Step(dt)
	s.syncFromPhysics()
	s.updateFocusPositions()

	broadcast, dirty := s.collectState()
	if len(dirty.Updates) > 0 {
		hasRemovals := s.pending.IngestWorldDelta(dirty)
		if hasRemovals {
			// Removals force the flush rather than waiting for the timer.
			s.flushPersistence(ctx, now, true)
		}
	}

	s.broadcast(broadcast)
	s.flushPersistence(ctx, now, false)
	s.snapshotMarker(ctx, now)
	s.pruneSessions(now)
}

// ingestNetwork drains the transport queue: control-channel auth frames
// bind sessions, input-channel frames feed action queues. Per-session
// failures never fail the tick.
func (s *Server) ingestNetwork(now time.Time) {
	for _, datagram := range s.endpoint.Poll(0) {
		session := s.sessions.Ensure(datagram.Remote, now)
		switch datagram.Env.Kind {
		case netproto.KindControlAuth:
			var msg netproto.ControlAuthMessage
			if err := netproto.DecodePayload(datagram.Env, &msg); err != nil {
				s.dropDatagram("decode", err)
				continue
			}
			if err := BindSession(session, msg, s.jwtSecret); err != nil {
				s.log.WithPlayer(msg.PlayerEntityID).WithError(err).
					Warn("rejecting session auth")
				continue
			}
			s.log.WithPlayer(session.BoundPlayerEntityID).
				WithField("remote_id", session.RemoteID).
				Info("session bound")
		case netproto.KindClientInput:
			var msg netproto.ClientInputMessage
			if err := netproto.DecodePayload(datagram.Env, &msg); err != nil {
				s.dropDatagram("decode", err)
				continue
			}
			s.metrics.InputFramesRecv.Inc()
			if !session.Authenticated() {
				s.dropDatagram("unauthenticated_input", nil)
				continue
			}
			if msg.PlayerEntityID != session.BoundPlayerEntityID {
				s.log.WithPlayer(msg.PlayerEntityID).
					WithField("bound", session.BoundPlayerEntityID).
					Warn("dropping input frame for unbound player")
				continue
			}
			ship, ok := s.index.ShipByPlayer[msg.PlayerEntityID]
			if !ok {
				continue
			}
			for _, action := range msg.Actions {
				ship.Actions.Push(action)
			}
		default:
			s.dropDatagram("unknown_kind", nil)
		}
	}
	s.metrics.ConnectedSessions.Set(float64(s.sessions.Len()))
}

func (s *Server) dropDatagram(reason string, err error) {
	if err != nil {
		s.log.WithError(err).WithField("reason", reason).Warn("dropping datagram")
	}
	s.metrics.DatagramsDropped.WithLabelValues(reason).Inc()
}

// ingestSpawns consumes queued starter-world deltas and spawns them live
func (s *Server) ingestSpawns() {
	for {
		select {
		case delta := <-s.spawnCh:
			s.spawnDelta(delta)
		default:
			return
		}
	}
}

func (s *Server) spawnDelta(delta game.WorldStateDelta) {
	records := make([]persistence.GraphEntityRecord, 0, len(delta.Updates))
	for _, update := range delta.Updates {
		if update.Removed {
			if e, ok := s.index.ByID[update.EntityID]; ok {
				s.phys.Despawn(e.Guid)
				s.index.Remove(update.EntityID)
			}
			continue
		}
		if _, exists := s.index.ByID[update.EntityID]; exists {
			continue
		}
		records = append(records, persistence.GraphEntityRecord{
			EntityID:   update.EntityID,
			Labels:     update.Labels,
			Properties: update.Properties,
			Components: update.Components,
		})
	}
	if len(records) == 0 {
		return
	}
	spawned := HydrateWorld(records, s.phys, s.log)
	for _, e := range spawned.Entities {
		if _, exists := s.index.ByID[e.ID]; !exists {
			s.index.Add(e)
		}
	}
	s.metrics.SimulatedBodies.Set(float64(s.phys.Len()))
	s.log.WithField("entities", len(records)).Info("spawned bootstrap entities into live world")
}

// syncFromPhysics copies authoritative kinematics back onto components and
// refreshes derived state (heading, scanner range, health clamp).
func (s *Server) syncFromPhysics() {
	for _, e := range s.index.Entities {
		body, ok := s.phys.Body(e.Guid)
		if !ok {
			continue
		}
		e.Position = body.Position()
		e.Velocity = body.Velocity()
		e.Heading = body.Heading()
		if e.Health != nil {
			e.Health.Clamp()
		}
		if e.IsShip {
			e.ScannerRangeM = game.AggregateScannerRange(e, s.index.Entities)
		}
	}
}

func (s *Server) updateFocusPositions() {
	for _, session := range s.sessions.All() {
		if !session.Authenticated() {
			continue
		}
		if ship, ok := s.index.ShipByPlayer[session.BoundPlayerEntityID]; ok {
			pos := ship.Position
			session.FocusPosition = &pos
		}
	}
}

// collectState builds the tentative broadcast delta (every simulated ship)
// and the dirty delta (ships whose tracked fields crossed thresholds).
func (s *Server) collectState() (game.WorldStateDelta, game.WorldStateDelta) {
	var broadcast, dirty game.WorldStateDelta
	for _, e := range s.index.Entities {
		if !e.IsShip {
			continue
		}
		update := s.shipUpdate(e)
		broadcast.Updates = append(broadcast.Updates, update)

		prev := s.lastReported[e.ID]
		health := 0.0
		if e.Health != nil {
			health = e.Health.Current
		}
		if !prev.valid ||
			prev.position.Distance(e.Position) > dirtyPositionM ||
			prev.velocity.Distance(e.Velocity) > dirtyVelocityMps ||
			math.Abs(prev.health-health) > dirtyHealthPoints {
			dirty.Updates = append(dirty.Updates, update)
			s.lastReported[e.ID] = reportedState{
				position: e.Position,
				velocity: e.Velocity,
				health:   health,
				valid:    true,
			}
		}
	}
	return broadcast, dirty
}

// shipUpdate refreshes a ship's delta entry from its authoritative state,
// regenerating component payloads through the registry.
func (s *Server) shipUpdate(e *game.Entity) game.WorldDeltaEntity {
	health := game.HealthPool{Current: 100, Maximum: 100}
	if e.Health != nil {
		health = *e.Health
	}
	flight := game.FlightComputer{}
	if e.FlightComputer != nil {
		flight = *e.FlightComputer
	}

	update := game.WorldDeltaEntity{
		EntityID: e.ID,
		Labels:   append([]string(nil), e.Labels...),
		Properties: map[string]json.RawMessage{
			"entity_id":        game.MustRaw(e.ID),
			"player_entity_id": game.MustRaw(string(e.Owner)),
			"position_m":       game.MustRaw(e.Position),
			"velocity_mps":     game.MustRaw(e.Velocity),
			"heading_rad":      game.MustRaw(e.Heading),
			"health":           game.MustRaw(health.Current),
			"max_health":       game.MustRaw(health.Maximum),
			"scanner_range_m":  game.MustRaw(e.ScannerRangeM),
		},
	}
	if len(update.Labels) == 0 {
		update.Labels = []string{"Entity", "Ship"}
	}
	update.Components = []game.WorldComponentDelta{
		registryComponent(e.ID, game.KindOwnerID, e.Owner),
		registryComponent(e.ID, game.KindFlightComputer, flight),
		registryComponent(e.ID, game.KindHealthPool, health),
		registryComponent(e.ID, game.KindPositionM, game.PositionM(e.Position)),
		registryComponent(e.ID, game.KindVelocityMps, game.VelocityMps(e.Velocity)),
	}
	return update
}

func registryComponent(entityID, kind string, value interface{}) game.WorldComponentDelta {
	en, _ := game.Registry(kind)
	payload, err := en.Envelope(value)
	if err != nil {
		payload = json.RawMessage("{}")
	}
	return game.WorldComponentDelta{
		ComponentID:   entityID + ":" + kind,
		ComponentKind: kind,
		Properties:    payload,
	}
}

// broadcast delivers the tick's delta to every session through the interest
// filter and add/stay/leave diffing.
func (s *Server) broadcast(world game.WorldStateDelta) {
	if len(world.Updates) == 0 && s.sessions.Len() == 0 {
		return
	}
	for _, session := range s.sessions.All() {
		ctx := s.visibilityContextFor(session)
		delivery := ApplyVisibilityFilter(world, ctx)
		if delivery == nil {
			// Unauthenticated or visibility off: no state frames at all.
			continue
		}
		session.VisibleEntities = AppendLeaveUpdates(session.VisibleEntities, delivery)
		if len(delivery.Updates) == 0 {
			continue
		}
		msg, err := netproto.StateMessageFromWorld(s.tick, *delivery)
		if err != nil {
			s.log.WithError(err).Error("failed encoding state frame")
			continue
		}
		if err := s.endpoint.Send(session.Remote, netproto.ChannelState, netproto.KindReplicationState, s.tick, msg); err != nil {
			s.log.WithError(err).WithField("remote_id", session.RemoteID).
				Warn("failed sending state frame")
			continue
		}
		s.metrics.StateFramesSent.Inc()
	}
}

func (s *Server) visibilityContextFor(session *Session) VisibilityContext {
	if s.cfg.VisibilityMode == "none" {
		return NoneContext()
	}
	if !session.Authenticated() {
		return NoneContext()
	}
	ctx := AuthenticatedContext(session.BoundPlayerEntityID, session.FocusPosition)
	ctx.ViewRangeM = session.ViewRangeM
	return ctx
}

// flushPersistence drains pending updates on the persist timer, or
// immediately when forced by removals. Failures log and retain the batch.
func (s *Server) flushPersistence(ctx context.Context, now time.Time, force bool) {
	if s.store == nil {
		return
	}
	if !force && now.Sub(s.lastPersistAt) < s.cfg.PersistInterval {
		return
	}
	count, err := s.pending.Flush(ctx, s.store, s.tick)
	if err != nil {
		s.metrics.PersistBatchesTotal.WithLabelValues("error").Inc()
		s.log.WithError(err).Error("failed persisting world delta; retaining batch")
		return
	}
	if count > 0 {
		s.metrics.PersistBatchesTotal.WithLabelValues("ok").Inc()
		s.metrics.PersistedEntities.Add(float64(count))
	}
	s.lastPersistAt = now
}

func (s *Server) snapshotMarker(ctx context.Context, now time.Time) {
	if s.store == nil || now.Sub(s.lastSnapshotAt) < s.cfg.SnapshotInterval {
		return
	}
	if err := s.store.PersistSnapshotMarker(ctx, s.tick, s.pending.KnownCount(), now.Unix()); err != nil {
		s.log.WithError(err).Error("failed persisting snapshot marker")
		return
	}
	s.metrics.SnapshotMarkers.Inc()
	s.lastSnapshotAt = now
}

func (s *Server) pruneSessions(now time.Time) {
	for _, session := range s.sessions.PruneIdle(now) {
		s.log.WithPlayer(session.BoundPlayerEntityID).
			WithField("remote_id", session.RemoteID).
			Info("session torn down")
	}
}

func (s *Server) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flushPersistence(ctx, time.Now().Add(s.cfg.PersistInterval), false)
}

// Tick returns the current tick counter
func (s *Server) Tick() uint64 { return s.tick }

// Sessions exposes the session table for the control listener and tests
func (s *Server) Sessions() *SessionTable { return s.sessions }

// Index exposes the authoritative entity graph for tests
func (s *Server) Index() *WorldIndex { return s.index }

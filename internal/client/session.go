package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Dastari/sidereal-v3/infrastructure/config"
	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/gateway"
	"github.com/Dastari/sidereal-v3/internal/netproto"
	"github.com/Dastari/sidereal-v3/internal/simcore"
)

// GatewayClient is the thin HTTP client for the auth gateway
type GatewayClient struct {
	baseURL string
	http    *http.Client
}

// NewGatewayClient creates a gateway client
func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *GatewayClient) postJSON(ctx context.Context, path string, body interface{}, dst interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return slerrors.Internal("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return slerrors.Internal("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dst)
}

func (c *GatewayClient) getJSON(ctx context.Context, path, bearer string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return slerrors.Internal("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	return c.do(req, dst)
}

func (c *GatewayClient) do(req *http.Request, dst interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return slerrors.Internal("gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		message := apiErr.Error
		if message == "" {
			message = fmt.Sprintf("gateway returned %d", resp.StatusCode)
		}
		switch resp.StatusCode {
		case http.StatusBadRequest:
			return slerrors.Validation(message)
		case http.StatusUnauthorized:
			return slerrors.Unauthorized(message)
		case http.StatusConflict:
			return slerrors.Conflict(message)
		default:
			return slerrors.Internal(message, nil)
		}
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// Register creates an account on the gateway
func (c *GatewayClient) Register(ctx context.Context, email, password string) (gateway.AuthTokens, error) {
	var tokens gateway.AuthTokens
	err := c.postJSON(ctx, "/auth/register", map[string]string{"email": email, "password": password}, &tokens)
	return tokens, err
}

// Login authenticates against the gateway
func (c *GatewayClient) Login(ctx context.Context, email, password string) (gateway.AuthTokens, error) {
	var tokens gateway.AuthTokens
	err := c.postJSON(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &tokens)
	return tokens, err
}

// WorldMe fetches the once-per-session starter-world snapshot
func (c *GatewayClient) WorldMe(ctx context.Context, accessToken string) (gateway.WorldMeResponse, error) {
	var world gateway.WorldMeResponse
	err := c.getJSON(ctx, "/world/me", accessToken, &world)
	return world, err
}

// Session drives the client: gateway auth, the replication transport, the
// fixed-rate intent loop with local prediction, and remote interpolation.
type Session struct {
	cfg     *config.ClientConfig
	log     *logging.Logger
	gateway *GatewayClient

	endpoint   *netproto.Endpoint
	serverAddr *net.UDPAddr

	tokens         *gateway.AuthTokens
	worldSnapshot  *gateway.WorldMeResponse
	playerEntityID string
	shipEntityID   string
	bound          bool

	tick      uint64
	input     simcore.InputSnapshot
	predicted PredictedState
	history   InputHistory
	tuning    simcore.ControlTuning

	remotes map[string]*SnapshotBuffer

	Dialogs DialogQueue

	startedAt time.Time
	now       func() time.Time
}

// NewSession binds the client transport and prepares a session
func NewSession(cfg *config.ClientConfig, log *logging.Logger) (*Session, error) {
	endpoint, err := netproto.Listen(cfg.UDPBind, log)
	if err != nil {
		return nil, err
	}
	serverAddr, err := net.ResolveUDPAddr("udp", cfg.ServerAddr)
	if err != nil {
		endpoint.Close()
		return nil, slerrors.Config("invalid REPLICATION_UDP_ADDR: " + cfg.ServerAddr)
	}
	return &Session{
		cfg:        cfg,
		log:        log,
		gateway:    NewGatewayClient(cfg.GatewayURL),
		endpoint:   endpoint,
		serverAddr: serverAddr,
		tuning:     simcore.CorvetteTuning(),
		remotes:    make(map[string]*SnapshotBuffer),
		startedAt:  time.Now(),
		now:        time.Now,
	}, nil
}

// Close releases the transport
func (s *Session) Close() error {
	return s.endpoint.Close()
}

// Authenticated reports whether the session holds tokens
func (s *Session) Authenticated() bool {
	return s.tokens != nil
}

// WorldSnapshot returns the fetched starter-world snapshot
func (s *Session) WorldSnapshot() *gateway.WorldMeResponse {
	return s.worldSnapshot
}

// Predicted returns the current predicted controlled-entity state
func (s *Session) Predicted() PredictedState {
	return s.predicted
}

// Login authenticates with the gateway and loads the world snapshot
func (s *Session) Login(ctx context.Context, email, password string) error {
	tokens, err := s.gateway.Login(ctx, email, password)
	if err != nil {
		s.Dialogs.Push(DialogError, "Login Failed", err.Error())
		return err
	}
	return s.adoptTokens(ctx, tokens)
}

// Register creates an account and loads the freshly bootstrapped world
func (s *Session) Register(ctx context.Context, email, password string) error {
	tokens, err := s.gateway.Register(ctx, email, password)
	if err != nil {
		s.Dialogs.Push(DialogError, "Registration Failed", err.Error())
		return err
	}
	return s.adoptTokens(ctx, tokens)
}

func (s *Session) adoptTokens(ctx context.Context, tokens gateway.AuthTokens) error {
	s.tokens = &tokens
	world, err := s.gateway.WorldMe(ctx, tokens.AccessToken)
	if err != nil {
		s.Dialogs.Push(DialogError, "World Snapshot Failed", err.Error())
		return err
	}
	s.worldSnapshot = &world
	s.playerEntityID = world.PlayerEntityID
	s.shipEntityID = world.ShipEntityID
	s.predicted = PredictedState{
		Position:   world.PositionM,
		Velocity:   world.VelocityMps,
		HeadingRad: world.HeadingRad,
		Health:     world.Health,
		MaxHealth:  world.MaxHealth,
	}
	return nil
}

// ConnectReplication performs the one-shot control-channel auth handshake
func (s *Session) ConnectReplication() error {
	if s.tokens == nil {
		return slerrors.Unauthorized("not logged in")
	}
	acked, err := s.endpoint.SendReliable(s.serverAddr, netproto.KindControlAuth, 0, netproto.ControlAuthMessage{
		PlayerEntityID: s.playerEntityID,
		AccessToken:    s.tokens.AccessToken,
	})
	if err != nil {
		return err
	}
	if !acked {
		s.Dialogs.Push(DialogError, "Connection Failed", "replication server did not acknowledge auth")
		return slerrors.Internal("control auth not acknowledged", nil)
	}
	s.bound = true
	return nil
}

// SetInput updates the sampled control state fed to the next intent tick
func (s *Session) SetInput(input simcore.InputSnapshot) {
	s.input = input
}

// IntentTick runs one fixed-rate intent step: enqueue the current input
// locally, predict forward, record history, and push the intent frame on
// the input channel.
func (s *Session) IntentTick() {
	if !s.bound {
		return
	}
	s.tick++
	dt := 1.0 / s.cfg.TickHz

	state := simcore.EntityKinematics{
		PositionM:   [3]float64{s.predicted.Position.X, s.predicted.Position.Y, s.predicted.Position.Z},
		VelocityMps: [3]float64{s.predicted.Velocity.X, s.predicted.Velocity.Y, s.predicted.Velocity.Z},
		HeadingRad:  s.predicted.HeadingRad,
	}
	next := simcore.StepEntityKinematics(state, s.input, s.tuning, dt)
	s.predicted.Position = game.Vec3{X: next.PositionM[0], Y: next.PositionM[1], Z: next.PositionM[2]}
	s.predicted.Velocity = game.Vec3{X: next.VelocityMps[0], Y: next.VelocityMps[1], Z: next.VelocityMps[2]}
	s.predicted.HeadingRad = next.HeadingRad

	s.history.Append(InputHistoryEntry{Tick: s.tick, Input: s.input, Predicted: next})

	msg := netproto.ClientInputMessage{
		PlayerEntityID: s.playerEntityID,
		Tick:           s.tick,
		Actions:        actionsFromSnapshot(s.input),
	}
	if err := s.endpoint.Send(s.serverAddr, netproto.ChannelInput, netproto.KindClientInput, s.tick, msg); err != nil {
		s.log.WithError(err).Warn("failed sending input frame")
	}
}

// IngestStateFrames drains the state channel: authoritative updates for the
// controlled entity reconcile the prediction; remote entities feed their
// snapshot buffers; removals evict remotes.
func (s *Session) IngestStateFrames() {
	dt := 1.0 / s.cfg.TickHz
	for _, datagram := range s.endpoint.Poll(0) {
		if datagram.Env.Kind != netproto.KindReplicationState {
			continue
		}
		var msg netproto.ReplicationStateMessage
		if err := netproto.DecodePayload(datagram.Env, &msg); err != nil {
			s.protocolError(err)
			continue
		}
		world, err := msg.DecodeWorld()
		if err != nil {
			s.protocolError(err)
			continue
		}
		for _, update := range world.Updates {
			s.applyUpdate(update, msg.Tick, dt)
		}
	}
}

func (s *Session) protocolError(err error) {
	s.log.WithError(err).Warn("undecodable state frame")
	s.Dialogs.Push(DialogError, "Replication Protocol Error", err.Error())
}

func (s *Session) applyUpdate(update game.WorldDeltaEntity, serverTick uint64, dt float64) {
	if update.Removed {
		delete(s.remotes, update.EntityID)
		return
	}

	var kin struct {
		position game.Vec3
		velocity game.Vec3
		heading  float64
	}
	hasPos := update.Property("position_m", &kin.position)
	update.Property("velocity_mps", &kin.velocity)
	update.Property("heading_rad", &kin.heading)
	if !hasPos {
		return
	}

	if update.EntityID == s.shipEntityID {
		server := AuthoritativeState{
			Tick:       serverTick,
			Position:   kin.position,
			Velocity:   kin.velocity,
			HeadingRad: kin.heading,
			Health:     s.predicted.Health,
			MaxHealth:  s.predicted.MaxHealth,
		}
		update.Property("health", &server.Health)
		update.Property("max_health", &server.MaxHealth)
		Reconcile(&s.predicted, server, dt)
		s.history.PruneThrough(serverTick)
		return
	}

	buffer, ok := s.remotes[update.EntityID]
	if !ok {
		buffer = &SnapshotBuffer{}
		s.remotes[update.EntityID] = buffer
	}
	buffer.Push(Snapshot{
		TimeS:      s.clockS(),
		Position:   kin.position,
		Velocity:   kin.velocity,
		HeadingRad: kin.heading,
	})
}

// RemoteStates samples every remote entity at now - interpolation delay.
// Entities with nothing to show are omitted.
func (s *Session) RemoteStates() map[string]RenderState {
	renderTime := s.clockS() - InterpolationDelayS
	out := make(map[string]RenderState, len(s.remotes))
	for entityID, buffer := range s.remotes {
		if state, ok := buffer.Sample(renderTime); ok {
			out[entityID] = state
		}
	}
	return out
}

// RemoteCount returns the size of the remote-ship registry
func (s *Session) RemoteCount() int {
	return len(s.remotes)
}

// Logout clears tokens, the world snapshot, the remote registry, and the
// authenticated binding; the UI returns to the auth screen.
func (s *Session) Logout() {
	s.tokens = nil
	s.worldSnapshot = nil
	s.playerEntityID = ""
	s.shipEntityID = ""
	s.bound = false
	s.remotes = make(map[string]*SnapshotBuffer)
	s.history.Clear()
	s.predicted = PredictedState{}
	s.tick = 0
}

// Run drives the two client loops until the context ends: the fixed-rate
// intent loop and the variable-rate update loop that ingests state and
// refreshes interpolation.
func (s *Session) Run(ctx context.Context) error {
	intent := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.TickHz))
	defer intent.Stop()
	render := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.RenderHz))
	defer render.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-intent.C:
			s.IntentTick()
		case <-render.C:
			s.IngestStateFrames()
		}
	}
}

func (s *Session) clockS() float64 {
	return s.now().Sub(s.startedAt).Seconds()
}

func actionsFromSnapshot(input simcore.InputSnapshot) []game.EntityAction {
	var actions []game.EntityAction
	switch {
	case input.Brake:
		actions = append(actions, game.ActionBrake)
	case input.ThrustForward:
		actions = append(actions, game.ActionThrustForward)
	case input.ThrustReverse:
		actions = append(actions, game.ActionThrustReverse)
	default:
		actions = append(actions, game.ActionThrustNeutral)
	}
	switch {
	case input.YawLeft:
		actions = append(actions, game.ActionYawLeft)
	case input.YawRight:
		actions = append(actions, game.ActionYawRight)
	default:
		actions = append(actions, game.ActionYawNeutral)
	}
	return actions
}

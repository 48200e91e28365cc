package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	slerrors "github.com/Dastari/sidereal-v3/infrastructure/errors"
	"github.com/Dastari/sidereal-v3/infrastructure/httputil"
	"github.com/Dastari/sidereal-v3/infrastructure/logging"
	"github.com/Dastari/sidereal-v3/infrastructure/metrics"
	"github.com/Dastari/sidereal-v3/internal/game"
	"github.com/Dastari/sidereal-v3/internal/persistence"
)

// WorldReader loads the persisted graph for the world-snapshot endpoint
type WorldReader interface {
	LoadGraphRecords(ctx context.Context) ([]persistence.GraphEntityRecord, error)
}

// API is the gateway HTTP surface
type API struct {
	service *Service
	world   WorldReader
	log     *logging.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	assets  string
}

// APIConfig configures the HTTP surface
type APIConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	AssetRoot      string
}

// NewAPI builds the gateway API. world may be nil; /world/me then fails 500.
func NewAPI(service *Service, world WorldReader, log *logging.Logger, m *metrics.Metrics, cfg APIConfig) *API {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 40
	}
	return &API{
		service: service,
		world:   world,
		log:     log,
		metrics: m,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		assets:  cfg.AssetRoot,
	}
}

// Router assembles the route table
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.observe)

	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	authRoutes := r.PathPrefix("/auth").Subrouter()
	authRoutes.Use(a.rateLimit)
	authRoutes.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost)
	authRoutes.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	authRoutes.HandleFunc("/refresh", a.handleRefresh).Methods(http.MethodPost)
	authRoutes.HandleFunc("/password-reset/request", a.handlePasswordResetRequest).Methods(http.MethodPost)
	authRoutes.HandleFunc("/password-reset/confirm", a.handlePasswordResetConfirm).Methods(http.MethodPost)
	authRoutes.HandleFunc("/me", a.handleMe).Methods(http.MethodGet)

	r.HandleFunc("/world/me", a.handleWorldMe).Methods(http.MethodGet)
	r.HandleFunc("/assets/stream/{asset_id}", a.handleStreamAsset).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (a *API) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		duration := time.Since(started)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		a.metrics.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		a.metrics.RequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
		a.log.LogRequest(r.Method, path, recorder.status, duration)
	})
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tokens, err := a.service.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tokens, err := a.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	tokens, err := a.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokens)
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	result, err := a.service.PasswordResetRequest(r.Context(), req.Email)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	response := map[string]interface{}{"accepted": result.Accepted}
	if result.ResetToken != "" {
		response["reset_token"] = result.ResetToken
	}
	httputil.WriteJSON(w, http.StatusOK, response)
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResetToken  string `json:"reset_token"`
		NewPassword string `json:"new_password"`
	}
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if err := a.service.PasswordResetConfirm(r.Context(), req.ResetToken, req.NewPassword); err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"accepted": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := a.authenticatedMe(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"account_id":       me.AccountID.String(),
		"email":            me.Email,
		"player_entity_id": me.PlayerEntityID,
	})
}

// StreamAssetDescriptor points the client at one downloadable asset
type StreamAssetDescriptor struct {
	AssetID           string `json:"asset_id"`
	RelativeCachePath string `json:"relative_cache_path"`
}

// WorldMeResponse is the one-per-session starter-world snapshot
type WorldMeResponse struct {
	PlayerEntityID         string                  `json:"player_entity_id"`
	ShipEntityID           string                  `json:"ship_entity_id"`
	ShipName               string                  `json:"ship_name"`
	PositionM              game.Vec3               `json:"position_m"`
	VelocityMps            game.Vec3               `json:"velocity_mps"`
	HeadingRad             float64                 `json:"heading_rad"`
	Health                 float64                 `json:"health"`
	MaxHealth              float64                 `json:"max_health"`
	EngineMaxAccelMps2     float64                 `json:"engine_max_accel_mps2"`
	EngineRampToMaxS       float64                 `json:"engine_ramp_to_max_s"`
	ModelAssetID           string                  `json:"model_asset_id"`
	StarfieldShaderAssetID string                  `json:"starfield_shader_asset_id"`
	Assets                 []StreamAssetDescriptor `json:"assets"`
}

// starterAssets is the enumerated descriptor list for the corvette starter
// class.
func starterAssets() []StreamAssetDescriptor {
	return []StreamAssetDescriptor{
		{AssetID: "corvette_01_gltf", RelativeCachePath: "models/corvette_01/corvette_01.gltf"},
		{AssetID: "corvette_01_bin", RelativeCachePath: "models/corvette_01/corvette_01.bin"},
		{AssetID: "corvette_01_png", RelativeCachePath: "models/corvette_01/corvette_01.png"},
		{AssetID: "starfield_wgsl", RelativeCachePath: "shaders/starfield.wgsl"},
		{AssetID: "space_background_wgsl", RelativeCachePath: "shaders/simple_space_background.wgsl"},
	}
}

func (a *API) handleWorldMe(w http.ResponseWriter, r *http.Request) {
	me, err := a.authenticatedMe(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.world == nil {
		a.writeError(w, r, slerrors.Internal("world store not configured", nil))
		return
	}

	records, err := a.world.LoadGraphRecords(r.Context())
	if err != nil {
		a.writeError(w, r, slerrors.Internal("load graph records failed", err))
		return
	}

	var ship *persistence.GraphEntityRecord
	accountID := me.AccountID.String()
	for i := range records {
		record := &records[i]
		if !recordHasLabel(*record, "Ship") {
			continue
		}
		var owner string
		if raw, ok := record.Properties["owner_account_id"]; ok {
			_ = json.Unmarshal(raw, &owner)
		}
		if owner == accountID {
			ship = record
			break
		}
	}
	if ship == nil {
		a.writeError(w, r, slerrors.Unauthorized("no starter ship found for account"))
		return
	}

	update := game.WorldDeltaEntity{EntityID: ship.EntityID, Properties: ship.Properties}
	response := WorldMeResponse{
		PlayerEntityID:         me.PlayerEntityID,
		ShipEntityID:           ship.EntityID,
		ShipName:               "Corvette",
		Health:                 100,
		MaxHealth:              100,
		EngineMaxAccelMps2:     80,
		EngineRampToMaxS:       5,
		ModelAssetID:           game.CorvetteModelAssetID,
		StarfieldShaderAssetID: game.StarfieldShaderAssetID,
		Assets:                 starterAssets(),
	}
	if pos, ok := update.PositionProperty(); ok {
		response.PositionM = pos
	}
	update.Property("velocity_mps", &response.VelocityMps)
	update.Property("heading_rad", &response.HeadingRad)
	update.Property("health", &response.Health)
	update.Property("max_health", &response.MaxHealth)
	update.Property("name", &response.ShipName)
	update.Property("asset_id", &response.ModelAssetID)
	update.Property("starfield_shader_asset_id", &response.StarfieldShaderAssetID)
	update.Property("engine_max_accel_mps2", &response.EngineMaxAccelMps2)
	update.Property("engine_ramp_to_max_s", &response.EngineRampToMaxS)

	httputil.WriteJSON(w, http.StatusOK, response)
}

var streamableAssets = map[string]struct {
	relativePath string
	contentType  string
}{
	"corvette_01_gltf":      {"models/corvette_01/corvette_01.gltf", "model/gltf+json"},
	"corvette_01_bin":       {"models/corvette_01/corvette_01.bin", "application/octet-stream"},
	"corvette_01_png":       {"models/corvette_01/corvette_01.png", "image/png"},
	"starfield_wgsl":        {"shaders/starfield.wgsl", "text/plain; charset=utf-8"},
	"space_background_wgsl": {"shaders/simple_space_background.wgsl", "text/plain; charset=utf-8"},
}

func (a *API) handleStreamAsset(w http.ResponseWriter, r *http.Request) {
	if _, err := a.authenticatedMe(r); err != nil {
		a.writeError(w, r, err)
		return
	}
	assetID := mux.Vars(r)["asset_id"]
	asset, ok := streamableAssets[assetID]
	if !ok {
		httputil.NotFound(w, "unknown asset_id")
		return
	}
	fullPath := filepath.Join(a.assets, filepath.FromSlash(asset.relativePath))
	if _, err := os.Stat(fullPath); err != nil {
		httputil.NotFound(w, "asset missing on gateway")
		return
	}
	w.Header().Set("Content-Type", asset.contentType)
	http.ServeFile(w, r, fullPath)
}

func (a *API) authenticatedMe(r *http.Request) (Me, error) {
	token, err := httputil.BearerToken(r)
	if err != nil {
		return Me{}, err
	}
	return a.service.Me(r.Context(), token)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if serviceErr := slerrors.GetServiceError(err); serviceErr != nil && serviceErr.HTTPStatus >= 500 {
		a.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	} else {
		a.log.WithError(err).WithField("path", r.URL.Path).Info("request rejected")
	}
	httputil.WriteServiceError(w, err)
}

func recordHasLabel(record persistence.GraphEntityRecord, label string) bool {
	for _, l := range record.Labels {
		if l == label {
			return true
		}
	}
	return false
}


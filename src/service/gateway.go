package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/reqgate/reqgate/src/config"
	"github.com/reqgate/reqgate/src/limiter"
	"github.com/reqgate/reqgate/src/redirect"
	"github.com/reqgate/reqgate/src/sanitize"
	"github.com/reqgate/reqgate/src/server"
	"github.com/reqgate/reqgate/src/settings"
	"github.com/reqgate/reqgate/src/stats"
	"github.com/reqgate/reqgate/src/utils"
)

// ApiPolicyName is the admission policy guarding every /api route. A config
// that does not define it fails route registration.
const ApiPolicyName = "api"

type GatewayService interface {
	/**
	 * Mounts the gateway routes onto the router. Every /api route is
	 * admission gated; registration panics when a route names a policy the
	 * config does not define.
	 */
	Register(router *mux.Router)

	GetCurrentConfig() config.GateConfig
}

type service struct {
	config        config.GateConfig
	rateLimiter   limiter.RateLimiter
	validator     redirect.Validator
	settings      settings.Settings
	pingStats     stats.EndpointStats
	redirectStats stats.EndpointStats
	echoStats     stats.EndpointStats
	feed          *server.AdmissionFeed
	timeSource    utils.TimeSource
}

type serviceError string

func (e serviceError) Error() string {
	return string(e)
}

type messageResponse struct {
	Message string `json:"message"`
}

type echoRequest struct {
	Message string `json:"message"`
}

type echoResponse struct {
	Echo string `json:"echo"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Echo bodies are bounded well above the message cap so oversized payloads
// fail without being read in full.
const maxEchoBodyBytes = 64 * 1024

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorf("error encoding response body: %s", err)
	}
}

func writeJsonError(w http.ResponseWriter, status int, message string) {
	writeJson(w, status, errorResponse{Error: message})
}

func (this *service) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.Use(RequestIdMiddleware, mux.CORSMethodMiddleware(api), this.CorsMiddleware)

	api.Handle("/ping", this.Gate(ApiPolicyName, http.HandlerFunc(this.handlePing))).Methods("GET", "OPTIONS")
	api.Handle("/redirect", this.Gate(ApiPolicyName, http.HandlerFunc(this.handleRedirect))).Methods("GET", "OPTIONS")
	api.Handle("/echo", this.Gate(ApiPolicyName, http.HandlerFunc(this.handleEcho))).Methods("POST", "OPTIONS")
}

// Gate wraps a handler behind the named admission policy. The policy binding
// is checked at registration so a bad route name fails startup rather than
// the first request.
func (this *service) Gate(policyName string, next http.Handler) http.Handler {
	if this.config.GetPolicy(context.Background(), policyName) == nil {
		panic(serviceError("no admission policy configured under name: " + policyName))
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := this.rateLimiter.Admit(r.Context(), policyName)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				// The caller went away while queued; nothing to write.
				return
			}
			logger.Errorf("admission check failed for policy %s: %s", policyName, err)
			writeJsonError(w, http.StatusInternalServerError, "admission check failed")
			return
		}

		this.broadcastDecision(r, decision)

		if !decision.Allowed {
			if this.settings.RateLimitResponseHeadersEnabled {
				addAdmissionHeaders(w.Header(), this.settings, decision)
				addRetryAfterHeader(w.Header(), decision)
			}
			writeJsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if this.settings.RateLimitResponseHeadersEnabled {
			addAdmissionHeaders(w.Header(), this.settings, decision)
		}
		next.ServeHTTP(w, r)
	})
}

func (this *service) broadcastDecision(r *http.Request, decision limiter.Decision) {
	if this.feed == nil || this.feed.ClientCount() == 0 {
		return
	}
	this.feed.Broadcast(&server.AdmissionEvent{
		Policy:            decision.Policy,
		Path:              r.URL.Path,
		RequestId:         RequestId(r.Context()),
		Allowed:           decision.Allowed,
		Queued:            decision.Queued,
		Remaining:         decision.Remaining,
		RetryAfterSeconds: decision.RetryAfterSeconds,
		Timestamp:         this.timeSource.UnixNow(),
	})
}

func (this *service) handlePing(w http.ResponseWriter, r *http.Request) {
	this.pingStats.Ok.Inc()
	writeJson(w, http.StatusOK, messageResponse{Message: "pong"})
}

func (this *service) handleRedirect(w http.ResponseWriter, r *http.Request) {
	location, err := this.validator.Validate(r.URL.Query().Get("target"))
	if err != nil {
		this.redirectStats.Rejected.Inc()
		writeJsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	this.redirectStats.Ok.Inc()
	http.Redirect(w, r, location, http.StatusFound)
}

func (this *service) handleEcho(w http.ResponseWriter, r *http.Request) {
	var request echoRequest
	body := http.MaxBytesReader(w, r.Body, maxEchoBodyBytes)
	if err := json.NewDecoder(body).Decode(&request); err != nil {
		this.echoStats.Rejected.Inc()
		writeJsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	normalized, err := sanitize.Sanitize(request.Message)
	if err != nil {
		this.echoStats.Rejected.Inc()
		writeJsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	this.echoStats.Ok.Inc()
	writeJson(w, http.StatusOK, echoResponse{Echo: normalized})
}

func (this *service) GetCurrentConfig() config.GateConfig {
	return this.config
}

func NewService(gateConfig config.GateConfig, rateLimiter limiter.RateLimiter, validator redirect.Validator,
	statsManager stats.Manager, s settings.Settings, feed *server.AdmissionFeed, timeSource utils.TimeSource) GatewayService {

	return &service{
		config:        gateConfig,
		rateLimiter:   rateLimiter,
		validator:     validator,
		settings:      s,
		pingStats:     statsManager.NewEndpointStats("ping"),
		redirectStats: statsManager.NewEndpointStats("redirect"),
		echoStats:     statsManager.NewEndpointStats("echo"),
		feed:          feed,
		timeSource:    timeSource,
	}
}

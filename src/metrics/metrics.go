package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	stats "github.com/lyft/gostats"

	"github.com/reqgate/reqgate/src/utils"
)

type serverMetrics struct {
	totalRequests stats.Counter
	responseTime  stats.Timer
}

// ServerReporter reports server-side metrics for the gateway HTTP server.
type ServerReporter struct {
	scope stats.Scope
}

func newServerMetrics(scope stats.Scope, routeName string) *serverMetrics {
	ret := serverMetrics{}
	ret.totalRequests = scope.NewCounter(routeName + ".total_requests")
	ret.responseTime = scope.NewTimer(routeName + ".response_time")
	return &ret
}

// NewServerReporter returns a ServerReporter object.
func NewServerReporter(scope stats.Scope) *ServerReporter {
	return &ServerReporter{
		scope: scope,
	}
}

// routeName resolves the matched route template so stats aggregate per route
// rather than per raw request path.
func routeName(request *http.Request) string {
	if route := mux.CurrentRoute(request); route != nil {
		if template, err := route.GetPathTemplate(); err == nil {
			return utils.SanitizeStatName(template)
		}
	}
	return utils.SanitizeStatName(request.URL.Path)
}

// Middleware records request counts and response times for every route
// registered behind it.
func (r *ServerReporter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		start := time.Now()
		s := newServerMetrics(r.scope, routeName(request))
		s.totalRequests.Inc()
		next.ServeHTTP(writer, request)
		s.responseTime.AddValue(float64(time.Since(start).Milliseconds()))
	})
}

package server

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"time"

	"os"
	"os/signal"
	"syscall"

	"net"

	"github.com/coocood/freecache"
	"github.com/gorilla/mux"
	reuseport "github.com/kavu/go_reuseport"
	stats "github.com/lyft/gostats"
	logger "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/reqgate/reqgate/src/limiter"
	"github.com/reqgate/reqgate/src/settings"
)

const shutdownGracePeriod = 10 * time.Second

type serverDebugListener struct {
	endpoints map[string]string
	debugMux  *http.ServeMux
	server    *http.Server
	listener  net.Listener
}

type server struct {
	httpAddress   string
	debugAddress  string
	router        *mux.Router
	httpServer    *http.Server
	listener      net.Listener
	store         stats.Store
	scope         stats.Scope
	debugListener serverDebugListener
	health        *HealthChecker
	feed          *AdmissionFeed
	shutdownDone  chan struct{}
	shutdownOnce  sync.Once
}

func (server *server) AddDebugHttpEndpoint(path string, help string, handler http.HandlerFunc) {
	server.debugListener.debugMux.HandleFunc(path, handler)
	server.debugListener.endpoints[path] = help
}

func (server *server) Router() *mux.Router {
	return server.router
}

func (server *server) AdmissionFeed() *AdmissionFeed {
	return server.feed
}

func (server *server) HealthChecker() *HealthChecker {
	return server.health
}

func (server *server) Start() {
	go func() {
		logger.Warnf("Listening for debug on '%s'", server.debugAddress)
		var err error
		server.debugListener.listener, err = reuseport.Listen("tcp", server.debugAddress)

		if err != nil {
			logger.Errorf("Failed to open debug HTTP listener: '%+v'", err)
			return
		}
		err = server.debugListener.server.Serve(server.debugListener.listener)
		logger.Infof("Debug server stopped: '%+v'", err)
	}()

	server.handleGracefulShutdown()

	logger.Warnf("Listening for HTTP on '%s'", server.httpAddress)
	list, err := reuseport.Listen("tcp", server.httpAddress)
	if err != nil {
		logger.Fatalf("Failed to open HTTP listener: '%+v'", err)
	}
	server.listener = list
	err = server.httpServer.Serve(list)
	if err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}

	// Serve returns as soon as a shutdown begins; hold the process open
	// until draining finishes.
	<-server.shutdownDone
}

func (server *server) Scope() stats.Scope {
	return server.scope
}

// Stop closes both listeners immediately and releases Start's drain wait
// without exiting the process.
func (server *server) Stop() {
	server.debugListener.server.Close()
	server.httpServer.Close()
	server.shutdownOnce.Do(func() { close(server.shutdownDone) })
}

func NewServer(s settings.Settings, name string, store stats.Store, localCache *freecache.Cache) Server {
	return newServer(s, name, store, localCache)
}

func newServer(s settings.Settings, name string, store stats.Store, localCache *freecache.Cache) *server {
	ret := new(server)
	ret.shutdownDone = make(chan struct{})

	// setup listen addresses
	ret.httpAddress = fmt.Sprintf("%s:%d", s.Host, s.Port)
	ret.debugAddress = fmt.Sprintf("%s:%d", s.DebugHost, s.DebugPort)

	// setup stats
	ret.store = store
	ret.scope = ret.store.ScopeWithTags(name, s.ExtraTags)
	ret.store.AddStatGenerator(stats.NewRuntimeStats(ret.scope.Scope("go")))
	if localCache != nil {
		ret.store.AddStatGenerator(limiter.NewLocalCacheStats(localCache, ret.scope.Scope("localcache")))
	}

	// setup http router
	ret.router = mux.NewRouter()
	if s.TracingEnabled {
		ret.router.Use(otelhttp.NewMiddleware(name + "_http"))
	}
	ret.httpServer = &http.Server{Handler: ret.router}

	// setup healthcheck path
	ret.health = NewHealthChecker()
	ret.router.Path("/health").Handler(ret.health)

	// setup default debug listener
	ret.debugListener.debugMux = http.NewServeMux()
	ret.debugListener.endpoints = map[string]string{}
	ret.AddDebugHttpEndpoint(
		"/debug/pprof/",
		"root of various pprof endpoints. hit for help.",
		func(writer http.ResponseWriter, request *http.Request) {
			pprof.Index(writer, request)
		})

	// setup stats endpoint
	ret.AddDebugHttpEndpoint(
		"/stats",
		"print out stats",
		func(writer http.ResponseWriter, request *http.Request) {
			expvar.Do(func(kv expvar.KeyValue) {
				io.WriteString(writer, fmt.Sprintf("%s: %s\n", kv.Key, kv.Value))
			})
		})

	// setup admission feed endpoint
	ret.feed = NewAdmissionFeed()
	ret.AddDebugHttpEndpoint(
		"/feed/admissions",
		"stream admission decisions over a websocket",
		ret.feed.HandleWebsocket)

	// setup debug root
	ret.debugListener.debugMux.HandleFunc(
		"/",
		func(writer http.ResponseWriter, request *http.Request) {
			sortedKeys := []string{}
			for key := range ret.debugListener.endpoints {
				sortedKeys = append(sortedKeys, key)
			}

			sort.Strings(sortedKeys)
			for _, key := range sortedKeys {
				io.WriteString(
					writer, fmt.Sprintf("%s: %s\n", key, ret.debugListener.endpoints[key]))
			}
		})
	ret.debugListener.server = &http.Server{Handler: ret.debugListener.debugMux}

	return ret
}

func (server *server) handleGracefulShutdown() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-sigs

		logger.Infof("Gateway received %v, shutting down gracefully", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := server.httpServer.Shutdown(ctx); err != nil {
			logger.Errorf("Error draining HTTP server: '%+v'", err)
		}
		server.debugListener.server.Close()
		server.shutdownOnce.Do(func() { close(server.shutdownDone) })
		os.Exit(0)
	}()
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	logger "github.com/sirupsen/logrus"
)

type HealthChecker struct {
	sync.Mutex
	healthMap map[string]bool
	ok        uint32
}

const (
	ConfigHealthComponentName = "config"
	SigtermComponentName      = "sigterm"
)

func areAllComponentsHealthy(healthMap map[string]bool) bool {
	allComponentsHealthy := true
	for _, value := range healthMap {
		if value == false {
			allComponentsHealthy = false
			break
		}
	}
	return allComponentsHealthy
}

// NewHealthChecker
// Only set the overall health to be Ok if all individual components are healthy.
func NewHealthChecker() *HealthChecker {
	ret := &HealthChecker{}

	ret.healthMap = make(map[string]bool)
	// config starts in failed state since at least one config load must succeed
	ret.healthMap[ConfigHealthComponentName] = false
	// True indicates we have not received sigterm
	ret.healthMap[SigtermComponentName] = true

	if areAllComponentsHealthy(ret.healthMap) {
		ret.ok = 1
	}

	sigterm := make(chan os.Signal, 1)
	signal.Notify(sigterm, syscall.SIGTERM)

	go func() {
		<-sigterm
		_ = ret.Fail(SigtermComponentName)
	}()

	return ret
}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ok := atomic.LoadUint32(&hc.ok)
	if ok == 1 {
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(500)
	}
}

func (hc *HealthChecker) Fail(componentName string) error {
	hc.Lock()
	defer hc.Unlock()
	if _, ok := hc.healthMap[componentName]; ok {
		// Set component to be unhealthy
		hc.healthMap[componentName] = false
		atomic.StoreUint32(&hc.ok, 0)
	} else {
		errorText := fmt.Sprintf("Invalid component: %s", componentName)
		logger.Errorf(errorText)
		return errors.New(errorText)
	}
	return nil
}

func (hc *HealthChecker) Ok(componentName string) error {
	hc.Lock()
	defer hc.Unlock()

	if _, ok := hc.healthMap[componentName]; ok {
		// Set component to be healthy
		hc.healthMap[componentName] = true
		allComponentsHealthy := areAllComponentsHealthy(hc.healthMap)

		if allComponentsHealthy {
			atomic.StoreUint32(&hc.ok, 1)
		}
	} else {
		errorText := fmt.Sprintf("Invalid component: %s", componentName)
		logger.Errorf(errorText)
		return errors.New(errorText)
	}

	return nil
}

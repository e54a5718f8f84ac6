package config

import (
	"golang.org/x/net/context"

	"github.com/reqgate/reqgate/src/stats"
)

// Errors that may be raised during config parsing.
type GateConfigError string

func (e GateConfigError) Error() string {
	return string(e)
}

// Admission policy for a named group of routes, including the stats that
// track its decisions.
type Policy struct {
	Name          string
	Stats         stats.AdmissionStats
	PermitLimit   uint32
	WindowSeconds int64
	QueueLimit    uint32
}

// Interface for interacting with a loaded gateway config. Implementations
// are immutable after load and safe for concurrent readers.
type GateConfig interface {
	// Dump the configuration into string form for debugging.
	Dump() string

	// Get the configured admission policy for a name.
	// @param ctx supplies the calling context.
	// @param name supplies the policy name to look up.
	// @return the policy to apply or nil if no policy is configured under the name.
	GetPolicy(ctx context.Context, name string) *Policy

	// Check whether a redirect target host is allowlisted.
	// Matching is exact and case-insensitive.
	RedirectHostAllowed(host string) bool

	// Check whether a CORS origin is allowlisted. Matching is exact, as
	// browsers serialize the Origin header deterministically.
	OriginAllowed(origin string) bool

	// The configured origin allowlist, in file order.
	AllowedOrigins() []string
}

// Information for a config file to load.
type GateConfigToLoad struct {
	Name       string
	ConfigYaml *YamlRoot
}

package redirect

import (
	"net/url"
	"strings"

	"github.com/reqgate/reqgate/src/config"
)

// RejectionReason identifies why a redirect target was refused. The string
// value doubles as the client facing detail message. Messages are static and
// never contain any part of the submitted target.
type RejectionReason string

func (this RejectionReason) Error() string {
	return string(this)
}

const (
	MissingTarget      RejectionReason = "redirect target is required"
	NotAbsoluteURL     RejectionReason = "redirect target must be an absolute url"
	SchemeNotAllowed   RejectionReason = "redirect target scheme must be https"
	HostNotAllowlisted RejectionReason = "redirect target host is not allowed"
)

// Interface for deciding whether a caller supplied string may be used as an
// outbound redirect target.
type Validator interface {
	// Validate a raw redirect target against the configured host allowlist.
	// @param target supplies the raw target string from the caller.
	// @return the normalized target to redirect to on success, otherwise a
	//   RejectionReason error describing the first check that failed.
	Validate(target string) (string, error)
}

type validatorImpl struct {
	config config.GateConfig
}

// Validate runs the rejection chain over the raw target. Checks run in a
// fixed order and short circuit at the first failure: presence, absolute
// form, scheme, then host allowlist. The scheme check always runs before the
// host check.
func (this *validatorImpl) Validate(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", MissingTarget
	}

	parsed, err := url.Parse(target)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return "", NotAbsoluteURL
	}
	if strings.ToLower(parsed.Scheme) != "https" {
		return "", SchemeNotAllowed
	}
	if !this.config.RedirectHostAllowed(parsed.Hostname()) {
		return "", HostNotAllowlisted
	}

	// The caller's raw string is never returned. The redirect location is the
	// re-serialized form with a lowercased scheme and host.
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// Create a validator backed by a loaded gateway config.
// @param gateConfig supplies the config holding the redirect host allowlist.
func NewValidator(gateConfig config.GateConfig) Validator {
	return &validatorImpl{config: gateConfig}
}

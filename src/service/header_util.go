package gateway

import (
	"net/http"
	"strconv"

	"github.com/reqgate/reqgate/src/limiter"
	"github.com/reqgate/reqgate/src/settings"
)

// addAdmissionHeaders annotates a response with the window state behind the
// decision. Header names come from settings.
func addAdmissionHeaders(header http.Header, s settings.Settings, decision limiter.Decision) {
	header.Set(s.HeaderRatelimitLimit, strconv.FormatUint(uint64(decision.Limit), 10))
	header.Set(s.HeaderRatelimitRemaining, strconv.FormatUint(uint64(decision.Remaining), 10))
	header.Set(s.HeaderRatelimitReset, strconv.FormatInt(decision.RetryAfterSeconds, 10))
}

func addRetryAfterHeader(header http.Header, decision limiter.Decision) {
	header.Set("Retry-After", strconv.FormatInt(decision.RetryAfterSeconds, 10))
}

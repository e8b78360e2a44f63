package reddit

import (
	"context"
	"net/http"

	"github.com/jaxron/axonet/pkg/client/logger"
	"github.com/jaxron/axonet/pkg/client/middleware"
)

// userAgent stamps every outgoing request with the configured user agent.
// Reddit rate-limits anonymous default user agents aggressively, so this
// sits first in the middleware chain.
type userAgent struct {
	agent string
}

func newUserAgent(agent string) *userAgent {
	return &userAgent{agent: agent}
}

// Process applies the user agent header before passing the request to the
// next middleware.
func (m *userAgent) Process(ctx context.Context, httpClient *http.Client, req *http.Request, next middleware.NextFunc) (*http.Response, error) {
	req.Header.Set("User-Agent", m.agent)
	return next(ctx, httpClient, req)
}

// SetLogger satisfies the middleware interface; this middleware never logs.
func (m *userAgent) SetLogger(logger.Logger) {}

package observability

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// Upstreams that receive trace headers regardless of configuration.
var defaultPropagationTargets = []string{
	"api.stripe.com",
	"api.resend.com",
	"api.mailgun.net",
	"api.postmarkapp.com",
}

// PropagationTargets returns the default upstream hosts plus the host of every
// parseable gateway base URL, without duplicates.
func PropagationTargets(gatewayURLs ...string) []string {
	targets := append([]string(nil), defaultPropagationTargets...)
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		seen[target] = struct{}{}
	}
	for _, raw := range gatewayURLs {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || parsed.Hostname() == "" {
			continue
		}
		host := strings.ToLower(parsed.Hostname())
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		targets = append(targets, host)
	}
	return targets
}

// NewHTTPClient builds the client shared by gateway adapters and email
// providers. Bank gateways are traced through to their own hosts.
func NewHTTPClient(timeout time.Duration, gatewayURLs ...string) *http.Client {
	client := &http.Client{
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(PropagationTargets(gatewayURLs...)),
		),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

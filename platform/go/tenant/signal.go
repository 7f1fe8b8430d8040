package tenant

import (
	"errors"
	"net/http"
	"strings"
)

const (
	// SignalHeader carries an explicit tenant slug, typically set by an
	// upstream gateway or an API client.
	SignalHeader = "X-Craftline-Tenant"
	// SignalCookie is set by the web UI after tenant selection.
	SignalCookie = "craftline_tenant"
)

// ErrNoSignal indicates the request carried no tenant signal at all.
// Resolution fails closed; there is no default tenant.
var ErrNoSignal = errors.New("no tenant signal in request")

// ErrNotFound indicates the signal named no resolvable tenant. Unknown and
// inactive slugs share it so responses cannot be used to enumerate tenants.
// Infrastructure failures are NOT this error and must stay distinguishable.
var ErrNotFound = errors.New("tenant not found")

// SignalFromRequest extracts the tenant slug from the request.
//
// Precedence is fixed: explicit header wins over cookie, cookie wins over
// subdomain inference. The same order applies at every entry point; a request
// carrying conflicting signals is routed by the most explicit one rather than
// silently defaulting.
func SignalFromRequest(r *http.Request) (string, error) {
	if v := strings.TrimSpace(r.Header.Get(SignalHeader)); v != "" {
		return strings.ToLower(v), nil
	}

	if c, err := r.Cookie(SignalCookie); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return strings.ToLower(v), nil
		}
	}

	if v := subdomainLabel(r.Host); v != "" {
		return v, nil
	}

	return "", ErrNoSignal
}

// subdomainLabel returns the left-most host label when the host has at least
// three labels (e.g. "acme" from acme.craftline.example), empty otherwise.
// Bare domains and IPs never infer a tenant.
func subdomainLabel(host string) string {
	host = strings.ToLower(host)
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	first := labels[0]
	if first == "" || first == "www" || !ValidSlug(first) {
		return ""
	}
	return first
}

package grantway

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/grantway/grantway/grant"
	"github.com/grantway/grantway/scope"
	"github.com/grantway/grantway/security"
)

// httpRequest adapts *http.Request to the WebRequest contract.
type httpRequest struct {
	r *http.Request
}

func (h httpRequest) Query(name string) (string, bool) {
	values := h.r.URL.Query()
	if _, ok := values[name]; !ok {
		return "", false
	}
	return values.Get(name), true
}

func (h httpRequest) Form(name string) (string, bool) {
	if h.r.PostForm == nil {
		// ParseForm tolerates bodyless requests.
		_ = h.r.ParseForm()
	}
	if _, ok := h.r.PostForm[name]; !ok {
		return "", false
	}
	return h.r.PostForm.Get(name), true
}

func (h httpRequest) Authorization() string {
	return h.r.Header.Get("Authorization")
}

// httpResponse adapts http.ResponseWriter to the WebResponse contract.
type httpResponse struct {
	w      http.ResponseWriter
	status int
}

func (h *httpResponse) SetStatus(code int) {
	h.status = code
}

func (h *httpResponse) SetHeader(name, value string) {
	h.w.Header().Set(name, value)
}

func (h *httpResponse) WriteJSON(v any) error {
	h.writeStatus()
	return json.NewEncoder(h.w).Encode(v)
}

func (h *httpResponse) WriteHTML(body string) error {
	h.writeStatus()
	_, err := h.w.Write([]byte(body))
	return err
}

func (h *httpResponse) Redirect(location string) error {
	h.w.Header().Set("Location", location)
	h.w.WriteHeader(http.StatusFound)
	return nil
}

func (h *httpResponse) WriteEmpty() error {
	h.writeStatus()
	return nil
}

func (h *httpResponse) writeStatus() {
	if h.status == 0 {
		h.status = http.StatusOK
	}
	h.w.WriteHeader(h.status)
}

// Handler exposes an Endpoint over net/http. It adds per-IP rate limiting on
// the token endpoint on top of the protocol flows.
type Handler struct {
	endpoint *Endpoint
	limiter  *security.RateLimiter
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// TokenRequestsPerSecond rate-limits the token endpoint per client IP.
	// Zero disables limiting.
	TokenRequestsPerSecond int

	// TokenRequestBurst is the burst allowance; defaults to the rate.
	TokenRequestBurst int
}

// NewHandler wraps an Endpoint for net/http serving.
func NewHandler(endpoint *Endpoint, opts HandlerOptions) *Handler {
	h := &Handler{endpoint: endpoint}
	if opts.TokenRequestsPerSecond > 0 {
		burst := opts.TokenRequestBurst
		if burst <= 0 {
			burst = opts.TokenRequestsPerSecond
		}
		h.limiter = security.NewRateLimiter(opts.TokenRequestsPerSecond, burst, endpoint.logger)
	}
	return h
}

// Close stops the handler's background goroutines.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// ServeAuthorization handles the authorization endpoint (GET or POST).
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := &httpResponse{w: w}
	if err := h.endpoint.Authorize(r.Context(), httpRequest{r}, resp); err != nil {
		h.endpoint.logger.Error("Writing authorization response failed", "error", err)
	}
}

// ServeToken handles the token endpoint (POST, form-encoded).
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	resp := &httpResponse{w: w}

	if h.limiter != nil && !h.limiter.Allow(clientIP(r)) {
		if m := h.endpoint.metrics(); m != nil {
			m.RecordRateLimitExceeded(r.Context(), "token_endpoint")
		}
		protoErr := ErrRateLimitExceeded("too many token requests")
		_ = h.endpoint.writeTokenError(r.Context(), resp, flowAccessToken, protoErr)
		return
	}

	if err := h.endpoint.Token(r.Context(), httpRequest{r}, resp); err != nil {
		h.endpoint.logger.Error("Writing token response failed", "error", err)
	}
}

// GrantHandler receives the validated grant behind a guarded request.
type GrantHandler func(w http.ResponseWriter, r *http.Request, g *grant.Grant)

// Protect wraps a resource handler with the Bearer guard: requests without a
// valid token get 401, requests whose grant does not cover required get 403,
// and everything else reaches next with the grant.
func (h *Handler) Protect(required scope.Scope, next GrantHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := &httpResponse{w: w}
		g, ok := h.endpoint.Guard(r.Context(), httpRequest{r}, resp, required)
		if !ok {
			return
		}
		next(w, r, g)
	}
}

// Routes registers the authorization and token endpoints on mux under the
// conventional paths.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/authorize", h.ServeAuthorization)
	mux.HandleFunc("/token", h.ServeToken)
}

// clientIP extracts the remote IP for rate limiting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

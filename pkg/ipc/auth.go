package ipc

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errNoToken      = errors.New("no authentication token provided")
	errInvalidToken = errors.New("invalid authentication token")
)

// sessionClaims are the JWT claims carried by a browser session token.
type sessionClaims struct {
	jwt.RegisteredClaims
}

// sessionIssuer signs and validates short-lived browser session tokens.
// Browser shells exchange the static bridge token for one of these so the
// long-lived secret never sits in page storage.
type sessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// newSessionIssuer builds an issuer from a configured secret. An empty
// secret gets a random per-process one, which invalidates sessions on
// restart.
func newSessionIssuer(secret string, ttl time.Duration) (*sessionIssuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	return &sessionIssuer{secret: key, ttl: ttl}, nil
}

// Issue signs a session token for the named principal.
func (si *sessionIssuer) Issue(subject string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(si.ttl)
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "overseer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(si.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expires, nil
}

// Validate checks a session token and returns its subject.
func (si *sessionIssuer) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return si.secret, nil
	})
	if err != nil {
		return "", errInvalidToken
	}
	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return "", errInvalidToken
	}
	return claims.Subject, nil
}

// authorize validates the request's credentials. With no token configured
// and RequireToken off, the loopback-only default, everything passes.
func (s *Server) authorize(r *http.Request) (string, bool) {
	token, fromQuery := extractBearerToken(r)
	// Query-string tokens leak into logs; only tolerated on loopback,
	// where the WebSocket client has no header control.
	if fromQuery && !isLoopbackBindAddress(s.cfg.BindAddress) {
		token = ""
	}
	if token != "" {
		if s.cfg.AuthToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1 {
			return "token", true
		}
		if subject, err := s.sessions.Validate(token); err == nil {
			return subject, true
		}
		return "", false
	}
	if s.cfg.RequireToken && !s.isUnauthenticatedEndpoint(r.URL.Path) {
		return "", false
	}
	return "local", true
}

// isUnauthenticatedEndpoint lists the endpoints reachable without a token
// even when one is required.
func (s *Server) isUnauthenticatedEndpoint(path string) bool {
	switch strings.TrimSpace(path) {
	case "/healthz":
		return true
	case "/metrics":
		return s.cfg.PublicMetrics
	default:
		return false
	}
}

// extractBearerToken pulls a bearer token from the Authorization header
// or, for WebSocket clients, the token query parameter.
func extractBearerToken(r *http.Request) (token string, fromQuery bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("Bearer "):]), false
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

// authMiddleware short-circuits unauthorized requests.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := s.authorize(r); !ok {
			respondError(w, http.StatusUnauthorized, errNoToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflights and stamps CORS headers for allowed
// origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.isOriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware adds the standard hardening headers.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// isOriginAllowed matches an Origin header against the configured list.
// Scheme and host must both match; a bare-host allowed entry matches any
// port on loopback.
func (s *Server) isOriginAllowed(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}

	for _, allowed := range s.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if strings.EqualFold(allowed, origin) {
			return true
		}
		allowedURL, err := url.Parse(allowed)
		if err != nil || allowedURL.Scheme == "" || allowedURL.Host == "" {
			continue
		}
		if !strings.EqualFold(allowedURL.Scheme, parsed.Scheme) {
			continue
		}
		if strings.EqualFold(allowedURL.Host, parsed.Host) {
			return true
		}
		// "http://localhost" in the allowed list covers every local port.
		if allowedURL.Port() == "" && isLoopbackHost(allowedURL.Hostname()) &&
			strings.EqualFold(allowedURL.Hostname(), parsed.Hostname()) {
			return true
		}
	}
	return false
}

// isWebSocketOriginAllowed admits same-host upgrades plus the configured
// origins. Non-browser clients send no Origin at all.
func (s *Server) isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" && strings.EqualFold(parsed.Host, r.Host) {
		return true
	}
	return s.isOriginAllowed(origin)
}

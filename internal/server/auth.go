package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/livetemplate/pagebuilder/internal/config"
)

const (
	// sessionCookie carries the signed browser session.
	sessionCookie = "pagebuilder_session"
	sessionIssuer = "pagebuilder"
	// keyParam lets a browser present the key once, in the editor link.
	keyParam = "key"
)

var (
	errAuthRequired = errors.New("authentication required")
	errBadBearer    = errors.New("invalid authorization format, expected Bearer token")
)

// sessions issues and checks browser session tokens. Tokens are HS256 JWTs
// signed with the API key, so changing the key ends every session.
type sessions struct {
	secret []byte
	ttl    time.Duration
}

func (s sessions) issue(now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s sessions) valid(token string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	return err == nil && parsed.Valid
}

func (s sessions) fromRequest(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	return err == nil && s.valid(c.Value)
}

// presentedKey returns the key the request carries, from the auth header or
// the key query parameter. "Authorization" expects the "Bearer <token>" form.
func presentedKey(r *http.Request, headerName string) (key string, fromQuery bool, err error) {
	if v := r.Header.Get(headerName); v != "" {
		if headerName != "Authorization" {
			return v, false, nil
		}
		token, ok := strings.CutPrefix(v, "Bearer ")
		if !ok || token == "" {
			return "", false, errBadBearer
		}
		return token, false, nil
	}
	if v := r.URL.Query().Get(keyParam); v != "" {
		return v, true, nil
	}
	return "", false, errAuthRequired
}

// AuthMiddleware requires the configured API key. Scripts send it in the
// configured header. Browsers open the editor once with ?key=..., receive an
// HttpOnly session cookie and are redirected to the bare URL; the page, the
// API and the socket then authenticate through that cookie. With no key
// configured every request passes through.
func AuthMiddleware(authCfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		apiKey := authCfg.GetAPIKey()
		if apiKey == "" {
			return next
		}
		headerName := authCfg.GetHeaderName()
		sess := sessions{secret: []byte(apiKey), ttl: authCfg.GetSessionTTL()}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// CORS preflights carry no credentials.
			if r.Method == http.MethodOptions || sess.fromRequest(r) {
				next.ServeHTTP(w, r)
				return
			}

			key, fromQuery, err := presentedKey(r, headerName)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !secureCompare(key, apiKey) {
				writeJSONError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			if fromQuery && r.URL.Path == "/" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				startSession(w, r, sess)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// startSession sets the session cookie and redirects to the same URL
// without the key, keeping it out of history and the page itself.
func startSession(w http.ResponseWriter, r *http.Request, sess sessions) {
	token, err := sess.issue(time.Now())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to start session")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(sess.ttl / time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	u := *r.URL
	q := u.Query()
	q.Del(keyParam)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.RequestURI(), http.StatusSeeOther)
}

// secureCompare compares in constant time.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package feed

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	. "github.com/roelfdiedericks/pail/internal/logging"
	"github.com/roelfdiedericks/pail/internal/store"
)

func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err) // crypto/rand failure means the host RNG is broken
	}
	return hex.EncodeToString(b)
}

const tokenSettingKey = "feed_token"

// loadOrBootstrapToken returns the configured feed token, or generates
// and persists one on first run, logging it once at WARN so the operator
// can retrieve it from the log.
func loadOrBootstrapToken(st *store.Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	existing, err := st.GetSetting(tokenSettingKey)
	if err == nil {
		return existing, nil
	}
	if err != store.ErrNotFound {
		return "", err
	}

	token := randomToken()
	if err := st.SetSetting(tokenSettingKey, token); err != nil {
		return "", err
	}
	L_warn("feed: no feed_token configured, generated one - set engine.feed_token to pin it", "token", token)
	return token, nil
}

// authMiddleware requires the configured/bootstrapped feed token, taken
// from HTTP Basic auth (any username, the token as password), else a
// Bearer Authorization header, else a ?token= query parameter, and
// compared in constant time to avoid a timing oracle.
func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if constantTimeEqual(extractCredential(r), token) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="pail"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func extractCredential(r *http.Request) string {
	if _, pass, ok := r.BasicAuth(); ok {
		return pass
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

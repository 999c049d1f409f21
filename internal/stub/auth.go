package stub

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fastodo/internal/api"
)

// signTokens issues an HS256 access/refresh pair for email, mirroring the
// production service's cookie-based session.
func (s *Server) signTokens(email string) (access, refresh string, err error) {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return "", "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	accessClaims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
	}
	access, err = jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", "", err
	}
	refreshClaims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(7 * 24 * time.Hour)),
	}
	refresh, err = jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) verifyToken(token string) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	if claims.Subject == "" {
		return errors.New("subject claim required")
	}
	return nil
}

// session rejects requests that carry a session cookie with a bad token.
// Requests without the cookie pass through; the production service leaves
// its data routes open and the client only attaches the cookie after
// signin, so the stub enforces no more than that.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(api.SessionCookie)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		if err := s.verifyToken(cookie.Value); err != nil {
			s.Logger.Warn("rejected session cookie", "error", err)
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]string{"Error": "Invalid Session"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

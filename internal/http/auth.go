package http

import (
	"errors"
	"net/http"
	"strings"

	"kas/internal/auth"
	"kas/internal/log"
)

const tokenHeader = "x-access-token"

// requireOwner resolves the caller's token into an owner id and stores it
// in the request context. A missing token is 403, a bad one 401.
func (s *Server) requireOwner(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r)
		if token == "" {
			NewJSONResponse().Status(http.StatusForbidden).JSON(messageBody{Message: "No token provided!"}).Write(w)
			return
		}
		ownerID, err := s.verifier.Verify(token)
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				log.FromContext(r.Context()).DebugContext(r.Context(), "Token rejected",
					log.FieldComponent, log.ComponentAuth,
					log.FieldError, err)
			}
			NewJSONResponse().Status(http.StatusUnauthorized).JSON(messageBody{Message: "Unauthorized!"}).Write(w)
			return
		}

		ctx := auth.WithOwner(r.Context(), ownerID)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldOwnerID, ownerID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenFrom accepts the x-access-token header or a bearer Authorization.
func tokenFrom(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(tokenHeader)); t != "" {
		return t
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

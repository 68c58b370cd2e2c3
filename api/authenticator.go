package api

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/vibecoding/magazine-backend/api/apicommon"
	"github.com/vibecoding/magazine-backend/errors"
)

// authenticator is a middleware that checks the JWT token verified by
// jwtauth.Verifier. The token subject is the user id, it is added to the
// request context for the next handlers.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil {
			errors.ErrUnauthorized.WithErr(err).Write(w)
			return
		}
		if token == nil || jwt.Validate(token, jwt.WithRequiredClaim(jwt.SubjectKey)) != nil || token.Subject() == "" {
			errors.ErrUnauthorized.Withf("sub claim not found in JWT token").Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), apicommon.UserIDMetadataKey, token.Subject())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

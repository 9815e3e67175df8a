package auth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pampa-erp/pampa-erp/internal/platform/httpx"
	"github.com/pampa-erp/pampa-erp/internal/shared"
)

// Middleware resolves the session user into a Principal and stores it in the
// request context. Handlers read it back and pass it to services explicitly.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequirePrincipal rejects unauthenticated requests and attaches the principal.
func (m Middleware) RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrAuthRequired.Error())
			return
		}
		userID, err := strconv.ParseInt(sess.User(), 10, 64)
		if err != nil || userID == 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrAuthRequired.Error())
			return
		}
		principal, err := m.Service.PrincipalFor(r.Context(), userID)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("resolve principal", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.ErrAuthRequired.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

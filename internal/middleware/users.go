package middleware

import (
	"context"
	"net/http"
	"sync"

	"commerceflow/internal/model"

	"github.com/rs/zerolog"
)

// UserRecorder stores the users seen on authenticated requests.
type UserRecorder interface {
	Upsert(ctx context.Context, user model.User) error
}

// RememberUsers records each authenticated caller in the local user
// directory the first time this process sees them, so order summaries can
// show usernames. The username claim is used when present, the user id
// otherwise. A failed write is logged and retried on the next request; the
// request itself always proceeds. It must run after Auth.
func RememberUsers(users UserRecorder, logger zerolog.Logger) func(http.Handler) http.Handler {
	var seen sync.Map

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user := model.User{ID: id.UserID, Username: id.Username}
			if user.Username == "" {
				user.Username = id.UserID
			}

			if known, ok := seen.Load(user.ID); !ok || known != user.Username {
				if err := users.Upsert(r.Context(), user); err != nil {
					logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record user")
				} else {
					seen.Store(user.ID, user.Username)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

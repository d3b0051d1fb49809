package router

import (
	"context"
	"net/http"

	"commerceflow/internal/collaborator"
	"commerceflow/internal/handler"
	"commerceflow/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Handlers are the HTTP handlers mounted by New. A nil handler leaves its
// routes out.
type Handlers struct {
	Orders     *handler.OrderHandler
	Payments   *handler.PaymentHandler
	Products   *handler.ProductHandler
	Promotions *handler.PromotionHandler
	Search     *handler.SearchHandler
	Admin      *handler.AdminHandler
	Internal   *handler.InternalHandler
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the middleware of New.
type Options struct {
	JWTSecret   string
	CORSOrigins []string
	// Users, when set, records every authenticated caller.
	Users middleware.UserRecorder
}

// New creates the HTTP router with all routes and middleware configured.
func New(h Handlers, opts Options, db Pinger, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	// Recovery -> Logging -> CORS, then auth per route group.
	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.Get("/health", health(db))

	if h.Payments != nil {
		// The gateway redirects the buyer's browser here, so no bearer token.
		r.Route("/payments", func(r chi.Router) {
			r.Get("/return", h.Payments.Return)
			r.Get("/success", h.Payments.Success)
			r.Get("/failure", h.Payments.Failure)
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(opts.JWTSecret, logger))
		if opts.Users != nil {
			r.Use(middleware.RememberUsers(opts.Users, logger))
		}

		r.Route("/api", func(r chi.Router) {
			if h.Orders != nil {
				r.Route("/orders", func(r chi.Router) {
					r.Post("/", h.Orders.Checkout)
					r.Get("/{id}", h.Orders.GetByID)
					r.Put("/{id}/shipping", h.Orders.SetShipping)
					r.Post("/{id}/cancel", h.Orders.Cancel)
				})
			}

			if h.Payments != nil {
				r.Route("/payments", func(r chi.Router) {
					r.Post("/", h.Payments.Create)
					r.Post("/{gatewayTransactionId}/capture", h.Payments.Capture)
				})
			}

			if h.Products != nil {
				r.Get("/products", h.Products.GetAll)
				r.Get("/products/{id}", h.Products.GetByID)
			}

			if h.Promotions != nil {
				r.Post("/promotions/validate", h.Promotions.Validate)
			}

			if h.Search != nil {
				r.Get("/search", h.Search.Search)
			}

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdmin(logger))

				if h.Payments != nil {
					r.Get("/orders/{id}/transactions", h.Payments.Transactions)
				}
				if h.Orders != nil {
					r.Get("/orders", h.Orders.List)
					r.Post("/orders/{id}/ship", h.Orders.Ship)
					r.Put("/orders/{id}/status", h.Orders.UpdateStatus)
				}
				if h.Products != nil {
					r.Post("/products", h.Products.Create)
					r.Put("/products/{id}", h.Products.Update)
					r.Post("/products/reindex", h.Products.Reindex)
				}
				if h.Promotions != nil {
					r.Get("/promotions", h.Promotions.List)
					r.Post("/promotions", h.Promotions.Create)
					r.Post("/promotions/import", h.Promotions.Import)
				}
				if h.Admin != nil {
					r.Get("/dead-letters", h.Admin.ListDeadLetters)
					r.Post("/dead-letters/{id}/replay", h.Admin.Replay)
				}
			})
		})

		if h.Internal != nil {
			r.Get(collaborator.OrderAmountPath, h.Internal.OrderAmount)
			r.Get(collaborator.ProductPricesPath, h.Internal.ProductPrices)
			r.Get(collaborator.UsersPath, h.Internal.Users)
		}
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}
}

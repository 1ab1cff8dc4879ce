/**
 * @description
 * This file sets up the HTTP router for the wallet-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for the browser admin dashboard.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// WalletRoutes creates and returns the router for the wallet service.
func WalletRoutes(h *WalletHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public endpoints: registration, login, and the gateway webhook. The
	// webhook authenticates with its own signature header instead of a JWT.
	r.Post("/auth/register", h.RegisterHandler)
	r.Post("/auth/login", h.LoginHandler)
	r.Post("/auth/admin-login", h.AdminLoginHandler)
	r.Post("/payments/webhook", h.WebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Get("/user/profile", h.ProfileHandler)
		r.Get("/user/transactions", h.TransactionHistoryHandler)

		r.Post("/transfers", h.TransferHandler)
		r.Post("/transfers/{entryID}/revert", h.RevertTransferHandler)

		r.Post("/payments", h.InitiatePaymentHandler)
		r.Get("/payments/{reference}", h.PaymentStatusHandler)
		r.Post("/payments/countdown-complete", h.ClaimBonusHandler)

		r.Get("/banks", h.ListBanksHandler)
		r.Get("/banks/resolve", h.ResolveAccountHandler)

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(AdminOnly)

			r.Get("/admin/users", h.AdminListUsersHandler)
			r.Get("/admin/users/{userID}", h.AdminGetUserHandler)
			r.Delete("/admin/users/{userID}", h.AdminDeleteUserHandler)
			r.Patch("/admin/users/{userID}/active", h.AdminSetActiveHandler)
			r.Post("/admin/users/{userID}/balance", h.AdminAdjustBalanceHandler)

			r.Get("/admin/transactions", h.AdminListTransactionsHandler)
			r.Post("/admin/transactions/{entryID}/revert", h.AdminRevertTransactionHandler)
			r.Patch("/admin/transactions/{entryID}/status", h.AdminEditStatusHandler)
		})
	})

	return r
}

package main

import (
	"log"
	"net/http"

	httphandlers "pocketmoney/internal/interfaces/http"
	"pocketmoney/internal/shared/config"
	"pocketmoney/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", httphandlers.HandleHealth)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)

	mux.Handle("/api/bank/auth", authMiddleware(http.HandlerFunc(deps.BankAuthHandler.HandleAuth)))
	mux.Handle("/api/bank/sync", authMiddleware(http.HandlerFunc(deps.BankSyncHandler.HandleSync)))
	mux.Handle("/api/bank/connections", authMiddleware(http.HandlerFunc(deps.ConnectionsHandler.HandleList)))
	mux.Handle("/api/bank/transactions", authMiddleware(http.HandlerFunc(deps.TransactionHandler.HandleList)))

	// Apply global middleware. CORS sits outside auth so preflights never need a token.
	handler := middleware.Logging(middleware.CORS(cfg.Server.AllowedHosts)(mux))
	handler = middleware.Tracing(handler)

	// Apply security middleware when TLS is enabled
	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("TLS security middleware enabled (HSTS)")
	}

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	return handler
}

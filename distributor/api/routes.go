package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dropline-network/dropline-node/distributor/metrics"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Prometheus metrics
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// API v1 endpoints
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/campaigns", s.handleListCampaigns).Methods(http.MethodGet)
	v1.HandleFunc("/campaigns/{id:[0-9]+}", s.handleGetCampaign).Methods(http.MethodGet)
	v1.HandleFunc("/campaigns/{id:[0-9]+}/active", s.handleCampaignActive).Methods(http.MethodGet)
	v1.HandleFunc("/campaigns/{id:[0-9]+}/payout", s.handlePreviewPayout).Methods(http.MethodPost)
	v1.HandleFunc("/campaigns/{id:[0-9]+}/claims", s.handleClaim).Methods(http.MethodPost)
	v1.HandleFunc("/campaigns/{id:[0-9]+}/claims/{recipient}", s.handleClaimStatus).Methods(http.MethodGet)
	v1.HandleFunc("/claims/batch", s.handleBatchClaim).Methods(http.MethodPost)
	v1.HandleFunc("/receipts", s.handleListReceipts).Methods(http.MethodGet)

	return router
}

package api

import (
	"github.com/gorilla/mux"

	"github.com/chatvault/chatvault/internal/api/recovery"
	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/store"
)

// NewRouter creates the HTTP router with all archive routes.
func NewRouter(a *archive.Archive, pinger store.HealthPinger, ready Readiness) (*mux.Router, *ArchiveHandler) {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	healthHandler := NewHealthHandler(pinger, ready)
	archiveHandler := NewArchiveHandler(a)

	// Health endpoints
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.HandleFunc("/api/health/store", healthHandler.CheckStoreHealth).Methods("GET")

	// Archive endpoints
	router.HandleFunc("/api/archive/groups", archiveHandler.ListGroups).Methods("GET")
	router.HandleFunc("/api/archive/groups/{groupId:[0-9]+}/contacts", archiveHandler.ListContacts).Methods("GET")
	router.HandleFunc("/api/archive/contacts/{contactId:[0-9]+}/accounts", archiveHandler.ListAccounts).Methods("GET")
	router.HandleFunc("/api/archive/conversations", archiveHandler.QueryConversations).Methods("GET")
	router.HandleFunc("/api/archive/conversations/{conversationId:[0-9]+}", archiveHandler.GetConversation).Methods("GET")
	router.HandleFunc("/api/archive/stats", archiveHandler.GetStats).Methods("GET")

	return router, archiveHandler
}

// Package handlers implements the HTTP handlers for the OpenLot marketplace.
// Handlers are thin: they resolve the workspace from the request context,
// call into the auction engine or archiver, and translate errors to status
// codes. The engine itself stays usable as an in-process library.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/openlot/openlot/marketplace/internal/api/middleware"
	"github.com/openlot/openlot/marketplace/internal/archive"
	"github.com/openlot/openlot/marketplace/internal/auction"
	"github.com/openlot/openlot/marketplace/internal/store"
	"github.com/openlot/openlot/marketplace/pkg/models"
)

// defaultHistoryLimit caps history listings when the caller gives no limit.
const defaultHistoryLimit = 100

// Handlers holds all handler dependencies.
type Handlers struct {
	Engine   *auction.Engine
	Archiver *archive.Archiver
}

// New creates a Handlers instance.
func New(engine *auction.Engine, archiver *archive.Archiver) *Handlers {
	return &Handlers{Engine: engine, Archiver: archiver}
}

// ── Auctions ─────────────────────────────────────────────────

type runAuctionRequest struct {
	Task models.Task       `json:"task"`
	Bids []models.BidInput `json:"bids"`
}

// RunAuction executes a full auction over a pre-assembled bid list.
func (h *Handlers) RunAuction(w http.ResponseWriter, r *http.Request) {
	var req runAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Task.Workspace == "" {
		req.Task.Workspace = middleware.GetWorkspace(r.Context())
	}

	session, err := h.Engine.RunAuction(r.Context(), req.Task, req.Bids)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// GetAuction returns a single auction session.
func (h *Handlers) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auctionID")
	session, err := h.Engine.GetSession(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// ListActive returns the workspace's non-terminal auctions.
func (h *Handlers) ListActive(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r.Context())
	sessions, err := h.Engine.ListActive(r.Context(), workspace)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.AuctionSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// History returns the workspace's completed auctions, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r.Context())
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.Engine.GetHistory(r.Context(), workspace, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.AuctionSession{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// ── Archive ──────────────────────────────────────────────────

type archiveRequest struct {
	Outcome     models.Outcome `json:"outcome"`
	ExecutionMs int64          `json:"execution_ms"`
}

// ArchiveAuction flattens a completed session and persists it with its
// bids. Archival failure never invalidates the auction itself.
func (h *Handlers) ArchiveAuction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "auctionID")

	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	session, err := h.Engine.GetSession(r.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entry, err := archive.EntryFromSession(session, req.Outcome, req.ExecutionMs)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Archiver.ArchiveAuction(r.Context(), entry); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := h.Archiver.ArchiveBids(r.Context(), session.ID, session.Bids); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// Analytics computes the workspace rollup over the archived history.
func (h *Handlers) Analytics(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r.Context())
	history, err := h.Archiver.History(r.Context(), workspace)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.Archiver.GenerateAnalytics(workspace, history))
}

// DetectPatterns mines the archived history and records every detection.
func (h *Handlers) DetectPatterns(w http.ResponseWriter, r *http.Request) {
	workspace := middleware.GetWorkspace(r.Context())
	history, err := h.Archiver.History(r.Context(), workspace)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	patterns, err := h.Archiver.DetectAndRecordPatterns(r.Context(), workspace, history)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if patterns == nil {
		patterns = []models.MarketplacePattern{}
	}
	respondJSON(w, http.StatusOK, patterns)
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"gedcom-review/pkg/changes"
	"gedcom-review/pkg/db"
	"gedcom-review/pkg/feed"
)

// Handlers contains all HTTP and WebSocket handlers
type Handlers struct {
	changes  db.IChangeStore
	trees    db.ITreeStore
	hub      *feed.Hub
	renderer Renderer
}

// NewHandlers creates a new handlers instance
func NewHandlers(changeStore db.IChangeStore, treeStore db.ITreeStore, hub *feed.Hub, renderer Renderer) *Handlers {
	return &Handlers{
		changes:  changeStore,
		trees:    treeStore,
		hub:      hub,
		renderer: renderer,
	}
}

// PendingChangesView is the data bag handed to the renderer.
type PendingChangesView struct {
	ActiveTreeName string           `json:"active_tree_name"`
	Changes        *changes.Grouped `json:"changes"`
	Title          string           `json:"title"`
	Tree           *db.Tree         `json:"tree"`
	Trees          []*db.Tree       `json:"trees"`
	URL            string           `json:"url"`
}

// Renderer turns the pending-changes view model into a response. The
// template/HTML layer is a separate collaborator; the service ships a JSON
// renderer.
type Renderer interface {
	Render(w http.ResponseWriter, view *PendingChangesView) error
}

// JSONRenderer renders the view model as JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(w http.ResponseWriter, view *PendingChangesView) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(view)
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// ShowPendingChanges lists every pending change across all trees, grouped
// by tree and record, with the current tree's tab preselected.
func (h *Handlers) ShowPendingChanges(w http.ResponseWriter, r *http.Request) {
	tree := TreeFrom(r.Context())
	if tree == nil {
		// routing error: the tree middleware did not run
		log.Printf("ShowPendingChanges called without a tree in context")
		http.Error(w, "No tree in request context", http.StatusInternalServerError)
		return
	}

	registry := FactoriesFrom(r.Context())
	if registry == nil {
		log.Printf("ShowPendingChanges called without factories in context")
		http.Error(w, "No factories in request context", http.StatusInternalServerError)
		return
	}

	aggregator := changes.NewAggregator(h.changes, h.trees, registry)
	result, err := aggregator.Aggregate(tree)
	if err != nil {
		log.Printf("Error aggregating pending changes: %v", err)
		http.Error(w, "Failed to list pending changes", http.StatusInternalServerError)
		return
	}

	trees, err := h.trees.ListTrees()
	if err != nil {
		log.Printf("Error listing trees: %v", err)
		http.Error(w, "Failed to list trees", http.StatusInternalServerError)
		return
	}

	url := r.URL.Query().Get("url")
	if url == "" {
		url = fmt.Sprintf("/trees/%s", tree.Name)
	}

	view := &PendingChangesView{
		ActiveTreeName: result.ActiveTreeName,
		Changes:        result.Grouped,
		Title:          "Pending changes",
		Tree:           tree,
		Trees:          trees,
		URL:            url,
	}

	if err := h.renderer.Render(w, view); err != nil {
		log.Printf("Error rendering pending changes: %v", err)
	}
}

// SubmitChange records a proposed edit and announces it on the feed.
func (h *Handlers) SubmitChange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TreeID  int     `json:"tree_id"`
		Xref    string  `json:"xref"`
		OldText *string `json:"old_gedcom"`
		NewText *string `json:"new_gedcom"`
		UserID  int     `json:"user_id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Xref == "" || (req.OldText == nil && req.NewText == nil) {
		http.Error(w, "A change needs an xref and at least one of old/new text", http.StatusBadRequest)
		return
	}

	change, err := h.changes.SubmitChange(req.TreeID, req.Xref, req.OldText, req.NewText, req.UserID)
	if err != nil {
		log.Printf("Error submitting change: %v", err)
		http.Error(w, "Failed to submit change", http.StatusInternalServerError)
		return
	}

	h.hub.Publish(feed.EventChangeSubmitted, change)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(change)
}

// AcceptChange approves a pending change.
func (h *Handlers) AcceptChange(w http.ResponseWriter, r *http.Request) {
	h.decideChange(w, r, feed.EventChangeAccepted, h.changes.AcceptChange)
}

// RejectChange declines a pending change.
func (h *Handlers) RejectChange(w http.ResponseWriter, r *http.Request) {
	h.decideChange(w, r, feed.EventChangeRejected, h.changes.RejectChange)
}

func (h *Handlers) decideChange(w http.ResponseWriter, r *http.Request, event string, decide func(int) error) {
	changeID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid change id", http.StatusBadRequest)
		return
	}

	if err := decide(changeID); err != nil {
		if err == db.ErrChangeNotFound {
			http.Error(w, "No pending change with that id", http.StatusNotFound)
			return
		}
		log.Printf("Error deciding change %d: %v", changeID, err)
		http.Error(w, "Failed to update change", http.StatusInternalServerError)
		return
	}

	change, err := h.changes.GetChange(changeID)
	if err != nil {
		log.Printf("Error reloading change %d for feed: %v", changeID, err)
	} else {
		h.hub.Publish(event, change)
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListTrees returns all trees known to the installation.
func (h *Handlers) ListTrees(w http.ResponseWriter, r *http.Request) {
	trees, err := h.trees.ListTrees()
	if err != nil {
		http.Error(w, "Failed to list trees", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trees)
}

// HandleModerationFeed upgrades the connection and subscribes it to the
// moderation event feed.
func (h *Handlers) HandleModerationFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	h.hub.Subscribe(conn)
}

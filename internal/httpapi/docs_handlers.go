package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"chatdocs.app/internal/audit"
	"chatdocs.app/internal/auth"
	"chatdocs.app/internal/docs"
)

func handleDocsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, docs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "document not found")
	case errors.Is(err, docs.ErrUnreachable), errors.Is(err, docs.ErrUpstream):
		writeError(w, r, http.StatusBadGateway, "document service unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) listDocuments(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	list, err := a.docs.List(r.Context(), token)
	if err != nil {
		handleDocsError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.docs.Delete(r.Context(), token, id); err != nil {
		handleDocsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "documents.delete", map[string]any{"document_id": id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

type renameRequest struct {
	Filename string `json:"filename"`
}

func (a *API) renameDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Filename = strings.TrimSpace(req.Filename)
	if req.Filename == "" {
		writeError(w, r, http.StatusBadRequest, "filename is required")
		return
	}
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.docs.Rename(r.Context(), token, id, req.Filename); err != nil {
		handleDocsError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "documents.rename", map[string]any{"document_id": id, "filename": req.Filename})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document renamed"})
}

// forward proxies to an upstream path built from the route variables.
func (a *API) forward(op string, target func(vars map[string]string) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a.docs.Proxy(op, target(mux.Vars(r))).ServeHTTP(w, r)
	}
}

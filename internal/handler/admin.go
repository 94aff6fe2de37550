package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/model"
)

func (h *Handler) handleSystemState(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.SystemState(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleWipe(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Wipe(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.Reset()
	slog.Warn("system wiped by admin", "admin_id", currentUser(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	kind := model.EntityKind(chi.URLParam(r, "kind"))
	id := chi.URLParam(r, "id")
	if !kind.Valid() {
		writeError(w, r, errNotFound)
		return
	}
	if kind == model.EntityUsers && id == currentUser(r).ID {
		writeError(w, r, &authoring.ValidationError{Problems: []authoring.Problem{{Field: "id", Rule: "self"}}})
		return
	}
	if err := h.store.RemoveEntity(r.Context(), kind, id); err != nil {
		writeError(w, r, err)
		return
	}
	if kind == model.EntityUsers {
		h.sessions.Forget(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var reg registration
	if err := readJSON(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := reg.check(true); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.createAccount(reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if id == currentUser(r).ID {
		writeError(w, r, &authoring.ValidationError{Problems: []authoring.Problem{{Field: "id", Rule: "self"}}})
		return
	}
	if err := h.store.ToggleUserActive(id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, errNotFound)
		return
	}
	if !user.Active {
		if err := h.store.RevokeUserSessions(id); err != nil {
			slog.Warn("failed to revoke sessions", "user_id", id, "error", err)
		}
		h.sessions.Forget(id)
	}
	writeJSON(w, http.StatusOK, user)
}

package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/delivery"
	"github.com/pavelanni/edutest/internal/model"
	"github.com/pavelanni/edutest/internal/store"
)

const (
	sessionCookieName = "session"
	csrfCookieName    = "csrf_token"
	csrfHeaderName    = "X-CSRF-Token"
	minPasswordLen    = 6
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func safeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

// csrfMiddleware implements double-submit tokens: safe requests receive a readable
// csrf_token cookie, and every other request must echo it in the X-CSRF-Token header.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(csrfCookieName)
		hasCookie := err == nil && cookie.Value != ""

		if safeMethod(r.Method) {
			if !hasCookie {
				token, err := generateCSRFToken()
				if err != nil {
					writeError(w, r, err)
					return
				}
				h.setCSRFCookie(w, token)
			}
			next.ServeHTTP(w, r)
			return
		}

		if !hasCookie {
			slog.Warn("CSRF cookie missing", "path", r.URL.Path)
			writeError(w, r, errCSRF)
			return
		}
		header := r.Header.Get(csrfHeaderName)
		if len(header) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(header), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch", "path", r.URL.Path)
			writeError(w, r, errCSRF)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleCSRF returns a fresh token for clients that cannot read cookies.
func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token, err := generateCSRFToken()
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.setCSRFCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// requireAuth is middleware that checks for a valid session cookie.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, errUnauthorized)
			return
		}

		authSess, err := h.store.GetAuthSession(cookie.Value)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			writeError(w, r, errUnauthorized)
			return
		}
		if authSess == nil {
			writeError(w, r, errUnauthorized)
			return
		}

		user, err := h.store.GetUserByID(authSess.UserID)
		if err != nil || user == nil || !user.Active {
			writeError(w, r, errUnauthorized)
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := currentUser(r)
			if user == nil {
				writeError(w, r, errUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, errForbidden)
		})
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registration struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Phone    string         `json:"phone"`
	Password string         `json:"password"`
	Role     model.UserRole `json:"role"`
}

// check validates a registration. allowAdmin is set only for admin-created accounts.
func (reg *registration) check(allowAdmin bool) error {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	reg.Phone = strings.TrimSpace(reg.Phone)

	ve := &authoring.ValidationError{}
	if reg.Name == "" {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "name", Rule: "required"})
	}
	if _, err := mail.ParseAddress(reg.Email); err != nil || !strings.Contains(reg.Email, "@") {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "email", Rule: "email"})
	}
	if len(reg.Password) < minPasswordLen {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "password", Rule: "min", Param: "6"})
	}
	switch {
	case reg.Role == model.UserRoleStudent, reg.Role == model.UserRoleTeacher:
	case reg.Role == model.UserRoleAdmin && allowAdmin:
	default:
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "role", Rule: "oneof", Param: "student teacher"})
	}
	if len(ve.Problems) > 0 {
		return ve
	}
	return nil
}

func (h *Handler) createAccount(reg registration) (model.User, error) {
	existing, err := h.store.GetUserByEmail(reg.Email)
	if err != nil {
		return model.User{}, err
	}
	if existing != nil {
		return model.User{}, errEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	return h.store.CreateUser(model.User{
		Name:         reg.Name,
		Email:        reg.Email,
		Phone:        reg.Phone,
		PasswordHash: string(hash),
		Role:         reg.Role,
		Active:       true,
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg registration
	if err := readJSON(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	if err := reg.check(false); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.createAccount(reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.startSession(w, user); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := readJSON(r, &creds); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.store.GetUserByEmail(creds.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, r, errInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		writeError(w, r, errInvalidCredentials)
		return
	}
	if !user.Active {
		writeError(w, r, errAccountDisabled)
		return
	}

	if err := h.startSession(w, *user); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) startSession(w http.ResponseWriter, user model.User) error {
	token, err := h.store.CreateAuthSession(user.ID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		Expires:  time.Now().Add(store.AuthSessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	return nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.store.DeleteAuthSession(cookie.Value); err != nil {
			slog.Warn("failed to delete auth session", "error", err)
		}
	}
	if u := currentUser(r); u != nil && u.Role == model.UserRoleStudent {
		if s, err := h.sessions.Get(u.ID); err == nil && s.State() == delivery.InProgress {
			_ = h.sessions.Abort(u.ID)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     h.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

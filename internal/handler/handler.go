// Package handler exposes the engine, authoring and administration over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edutest/internal/delivery"
	"github.com/pavelanni/edutest/internal/llm/prompts"
	"github.com/pavelanni/edutest/internal/model"
)

// Store is everything the HTTP layer needs from persistence. Both *store.Store and
// *store.Simulated satisfy it.
type Store interface {
	delivery.RecordStore

	CreateClassroom(ctx context.Context, name, teacherID string) (model.Classroom, error)
	GetTest(ctx context.Context, id string) (model.Test, error)
	Wipe(ctx context.Context) error
	SystemState(ctx context.Context) (model.SystemState, error)
	ExportResults(ctx context.Context, teacherID string) (model.ResultsExport, error)

	CreateUser(u model.User) (model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	GetUserByID(id string) (*model.User, error)
	ListUsers() ([]model.User, error)
	ListUsersByID(ids []string) ([]model.User, error)
	ToggleUserActive(id string) error

	CreateAuthSession(userID string) (string, error)
	GetAuthSession(token string) (*model.AuthSession, error)
	DeleteAuthSession(token string) error
	RevokeUserSessions(userID string) error
}

// Drafter writes question drafts for teachers. It is optional.
type Drafter interface {
	DraftQuestions(ctx context.Context, topic string, count int, difficulty prompts.Difficulty) ([]model.Question, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    Store
	engine   *delivery.Engine
	sessions *delivery.Sessions
	drafter  Drafter
	config   model.ServerConfig
}

// New creates a new Handler. drafter may be nil, which disables question drafting.
func New(s Store, drafter Drafter, cfg model.ServerConfig, opts ...delivery.Option) *Handler {
	engine := delivery.New(s, opts...)
	return &Handler{
		store:    s,
		engine:   engine,
		sessions: delivery.NewSessions(engine),
		drafter:  drafter,
		config:   cfg,
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.csrfMiddleware)

		r.Get("/auth/csrf", h.handleCSRF)
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout", h.handleLogout)
			r.Get("/me", h.handleMe)

			r.Route("/student", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleStudent))
				r.Get("/tests", h.handleStudentTests)
				r.Get("/classrooms", h.handleStudentClassrooms)
				r.Post("/classrooms/join", h.handleJoinClassroom)
				r.Get("/attempts", h.handleStudentAttempts)
				r.Post("/tests/{testID}/attempt", h.handleBeginAttempt)
				r.Get("/attempt", h.handleAttemptView)
				r.Post("/attempt/select", h.handleSelect)
				r.Post("/attempt/navigate", h.handleNavigate)
				r.Post("/attempt/finish", h.handleFinish)
				r.Delete("/attempt", h.handleAbort)
			})

			r.Route("/teacher", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleTeacher))
				r.Get("/classrooms", h.handleTeacherClassrooms)
				r.Post("/classrooms", h.handleCreateClassroom)
				r.Get("/classrooms/{classroomID}/students", h.handleClassroomRoster)
				r.Get("/tests", h.handleTeacherTests)
				r.Post("/tests", h.handleCreateTest)
				r.Get("/tests/{testID}", h.handleTeacherTest)
				r.Put("/tests/{testID}", h.handleUpdateTest)
				r.Post("/tests/{testID}/toggle", h.handleToggleTest)
				r.Get("/tests/{testID}/attempts", h.handleTestAttempts)
				r.Post("/tests/{testID}/import", h.handleImportIntoTest)
				r.Post("/import", h.handleParseImport)
				r.Post("/draft", h.handleDraft)
				r.Get("/export", h.handleTeacherExport)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/state", h.handleSystemState)
				r.Post("/wipe", h.handleWipe)
				r.Get("/users", h.handleAdminUsers)
				r.Post("/users", h.handleCreateUser)
				r.Post("/users/{userID}/toggle", h.handleToggleUserActive)
				r.Delete("/{kind}/{id}", h.handleRemoveEntity)
			})
		})
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

var errBadBody = errors.New("invalid request body")

// readJSON decodes a single JSON object from the request body into v.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// readBody returns the raw request body, or the uploaded file when the request is a
// multipart form with the given field.
func readBody(r *http.Request, field string) ([]byte, string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, "", fmt.Errorf("%w: %v", errBadBody, err)
		}
		file, header, err := r.FormFile(field)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", errBadBody, err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxBodyBytes))
		if err != nil {
			return nil, "", err
		}
		return data, header.Filename, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

func currentUser(r *http.Request) *model.User {
	return model.UserFromContext(r.Context())
}

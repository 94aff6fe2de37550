package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/delivery"
	appI18n "github.com/pavelanni/edutest/internal/i18n"
	"github.com/pavelanni/edutest/internal/store"
)

type errResp struct {
	Error    string              `json:"error"`
	Code     string              `json:"code"`
	Reason   delivery.Reason     `json:"reason,omitempty"`
	Problems []authoring.Problem `json:"problems,omitempty"`
}

// apiError is an error the handler raises itself, already carrying its status and message.
type apiError struct {
	status int
	code   string
	msgID  string
}

func (e *apiError) Error() string { return e.code }

var (
	errUnauthorized       = &apiError{http.StatusUnauthorized, "unauthorized", "Unauthorized"}
	errForbidden          = &apiError{http.StatusForbidden, "forbidden", "Forbidden"}
	errInvalidCredentials = &apiError{http.StatusUnauthorized, "invalid_credentials", "InvalidCredentials"}
	errAccountDisabled    = &apiError{http.StatusForbidden, "account_disabled", "AccountDisabled"}
	errEmailTaken         = &apiError{http.StatusConflict, "email_taken", "EmailTaken"}
	errCSRF               = &apiError{http.StatusForbidden, "csrf_mismatch", "CSRFMismatch"}
	errNotFound           = &apiError{http.StatusNotFound, "not_found", "NotFound"}
	errDraftingDisabled   = &apiError{http.StatusServiceUnavailable, "llm_unavailable", "LLMUnavailable"}
	errDraftFailed        = &apiError{http.StatusBadGateway, "llm_failed", "LLMFailed"}
	errQuestionsLocked    = &apiError{http.StatusConflict, "questions_locked", "QuestionsLocked"}
)

// lifecycle misuse maps to 409, except a missing session which is a 404.
var lifecycleErrors = []struct {
	err    error
	status int
	code   string
	msgID  string
}{
	{delivery.ErrSessionNotFound, http.StatusNotFound, "no_attempt", "NoAttemptInProgress"},
	{delivery.ErrSessionActive, http.StatusConflict, "attempt_in_progress", "AttemptInProgress"},
	{delivery.ErrNotInProgress, http.StatusConflict, "not_in_progress", "NoAttemptInProgress"},
	{delivery.ErrAlreadyStarted, http.StatusConflict, "already_started", "AttemptAlreadyStarted"},
	{delivery.ErrAlreadyFinished, http.StatusConflict, "already_submitted", "AttemptAlreadySubmitted"},
	{delivery.ErrNotFinalQuestion, http.StatusConflict, "not_final_question", "NotFinalQuestion"},
	{delivery.ErrSubmissionInFlight, http.StatusConflict, "submission_in_flight", "SubmissionInFlight"},
	{delivery.ErrEmptyTest, http.StatusConflict, "empty_test", "EmptyTest"},
	{delivery.ErrInvalidPosition, http.StatusConflict, "invalid_position", "InvalidPosition"},
	{delivery.ErrInvalidOption, http.StatusConflict, "invalid_option", "InvalidOption"},
	{delivery.ErrInvalidDelta, http.StatusConflict, "invalid_step", "InvalidStep"},
}

// writeError maps err onto a status code and a localized JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var ae *apiError
	if errors.As(err, &ae) {
		writeJSON(w, ae.status, errResp{Error: appI18n.T(ctx, ae.msgID), Code: ae.code})
		return
	}

	var ee *delivery.EligibilityError
	if errors.As(err, &ee) {
		if errors.Is(ee, delivery.ErrCodeNotFound) {
			writeJSON(w, http.StatusNotFound, errResp{
				Error: appI18n.Td(ctx, "CodeNotFound", map[string]any{"Code": ee.Code}),
				Code:  "code_not_found",
			})
			return
		}
		msgID := "AttemptNotActive"
		if ee.Reason == delivery.ReasonLimitReached {
			msgID = "AttemptLimitReached"
		}
		writeJSON(w, http.StatusForbidden, errResp{
			Error:  appI18n.T(ctx, msgID),
			Code:   "attempt_not_allowed",
			Reason: ee.Reason,
		})
		return
	}

	var ve *authoring.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, errResp{
			Error:    appI18n.T(ctx, "ValidationFailed"),
			Code:     "validation_failed",
			Problems: ve.Problems,
		})
		return
	}

	for _, le := range lifecycleErrors {
		if errors.Is(err, le.err) {
			writeJSON(w, le.status, errResp{Error: appI18n.T(ctx, le.msgID), Code: le.code})
			return
		}
	}

	switch {
	case errors.Is(err, delivery.ErrTestNotFound):
		writeJSON(w, http.StatusNotFound, errResp{Error: appI18n.T(ctx, "TestNotFound"), Code: "test_not_found"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResp{Error: appI18n.T(ctx, "NotFound"), Code: "not_found"})
	case errors.Is(err, authoring.ErrMalformedImport):
		writeJSON(w, http.StatusBadRequest, errResp{Error: appI18n.T(ctx, "ImportMalformed"), Code: "import_malformed"})
	case errors.Is(err, errBadBody):
		writeJSON(w, http.StatusBadRequest, errResp{Error: appI18n.T(ctx, "BadRequest"), Code: "bad_request"})
	case errors.Is(err, store.ErrTransient), errors.Is(err, context.DeadlineExceeded):
		slog.Warn("store unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errResp{Error: appI18n.T(ctx, "StoreUnavailable"), Code: "unavailable"})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errResp{Error: appI18n.T(ctx, "Internal"), Code: "internal"})
	}
}

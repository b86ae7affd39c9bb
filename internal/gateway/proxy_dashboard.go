package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
	"github.com/MustafaKhaled/quizify-ai-saas/pkg/platform/httputil"
)

// RegisterDashboard mounts the quiz and source proxies the dashboard frontend
// calls from the browser.
func (h *Handler) RegisterDashboard(r chi.Router) {
	r.Get("/api/quizzes", h.Quizzes)
	r.Get("/api/quiz/{id}", h.Quiz)
	r.Post("/api/quiz/create", h.CreateQuiz)
	r.Post("/api/quiz/submit", h.SubmitQuiz)
	r.Get("/api/sources", h.Sources)
	r.Delete("/api/sources/{id}", h.DeleteSource)
}

// Quizzes proxies the caller's quiz list unchanged.
func (h *Handler) Quizzes(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	payload, err := h.authority.Get(r.Context(), sess.Token, "/quizzes/my_quizzes")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

// Quiz returns a single quiz. The backend answers the lookup with an array;
// the first element is the quiz.
func (h *Handler) Quiz(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	payload, err := h.authority.Get(r.Context(), sess.Token, "/quizzes/"+url.PathEscape(id))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err == nil {
		if len(items) == 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "quiz not found"))
			return
		}
		payload = items[0]
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

// CreateQuiz streams a multipart quiz-generation upload to the backend. The
// body is forwarded as-is under the browser's Content-Type so the multipart
// boundary and file parts survive untouched.
func (h *Handler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "multipart form data is required"))
		return
	}

	payload, err := h.authority.PostRaw(r.Context(), sess.Token, "/quizzes/create", contentType, r.Body)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

type submitQuizRequest struct {
	QuizID           string          `json:"quiz_id"`
	Answers          json.RawMessage `json:"answers"`
	TimeTakenSeconds json.RawMessage `json:"time_taken_seconds,omitempty"`
}

// SubmitQuiz forwards quiz answers for grading.
func (h *Handler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req submitQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.QuizID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "quiz_id is required"))
		return
	}

	payload, err := h.authority.PostJSON(r.Context(), sess.Token,
		"/quizzes/submit/"+url.PathEscape(req.QuizID), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

// Sources proxies the caller's uploaded quiz sources.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	payload, err := h.authority.Get(r.Context(), sess.Token, "/quizzes/sources")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

// DeleteSource removes one of the caller's quiz sources.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.authority.Delete(r.Context(), sess.Token, "/quizzes/sources/"+url.PathEscape(id)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MustafaKhaled/quizify-ai-saas/internal/audit"
	"github.com/MustafaKhaled/quizify-ai-saas/internal/authority"
	dErrors "github.com/MustafaKhaled/quizify-ai-saas/pkg/domain-errors"
	"github.com/MustafaKhaled/quizify-ai-saas/pkg/platform/httputil"
)

// RegisterAdmin mounts the user-management proxies the admin console calls
// from the browser.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/api/customers", h.Customers)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/users/{id}", h.UserDetail)
	r.Post("/api/users/create", h.CreateUser)
	r.Post("/api/users/delete", h.DeleteUser)
	r.Delete("/api/quiz-sources/{id}", h.DeleteQuizSource)
}

// adminUser is the record shape of the Authority's all-users listing.
type adminUser struct {
	ID           authority.UserID        `json:"id"`
	Email        string                  `json:"email"`
	Name         string                  `json:"name"`
	CreatedAt    string                  `json:"created_at"`
	IsPro        bool                    `json:"is_pro"`
	QuizzesCount int                     `json:"quizzes_count"`
	SourcesCount int                     `json:"sources_count"`
	Subscription *authority.Subscription `json:"subscription"`
}

// Customer is the narrowed record the admin console's customer table renders.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Avatar   Avatar `json:"avatar"`
	Status   string `json:"status"`
	Location string `json:"location"`
}

// Avatar carries the generated avatar URL.
type Avatar struct {
	Src string `json:"src"`
}

// Customers lists all users with their subscription state narrowed to the
// tri-state the console understands: subscribed, unsubscribed, bounced.
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	users, err := h.fetchAllUsers(r, sess.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	customers := make([]Customer, 0, len(users))
	for _, u := range users {
		customers = append(customers, Customer{
			ID:       string(u.ID),
			Name:     displayName(u),
			Email:    u.Email,
			Avatar:   Avatar{Src: "https://i.pravatar.cc/128?u=" + url.QueryEscape(string(u.ID))},
			Status:   subscriptionStatus(u.Subscription),
			Location: joinDate(u.CreatedAt),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, customers)
}

// StatValue is a dashboard metric with its period-over-period variation.
type StatValue struct {
	Value     int `json:"value"`
	Variation int `json:"variation"`
}

// StatsResponse aggregates the all-users listing for the console's overview.
type StatsResponse struct {
	TotalUsers   StatValue `json:"totalUsers"`
	ProUsers     StatValue `json:"proUsers"`
	TrialUsers   StatValue `json:"trialUsers"`
	TotalQuizzes StatValue `json:"totalQuizzes"`
	TotalSources StatValue `json:"totalSources"`
}

// Stats computes overview numbers from the all-users listing. The Authority
// has no aggregate endpoint; the gateway derives them per request.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	users, err := h.fetchAllUsers(r, sess.Token)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var pro, trial, quizzes, sources int
	for _, u := range users {
		if u.IsPro || subscriptionStatus(u.Subscription) == "subscribed" {
			pro++
		}
		if u.Subscription != nil && u.Subscription.Status == "trial" {
			trial++
		}
		quizzes += u.QuizzesCount
		sources += u.SourcesCount
	}
	total := len(users)

	// No previous-period store yet; the user variation approximates against
	// a floor of total-5 the way the console always has.
	previous := total - 5
	if previous < 1 {
		previous = 1
	}
	resp := StatsResponse{
		TotalUsers:   StatValue{Value: total, Variation: roundPercent(total-previous, previous)},
		ProUsers:     StatValue{Value: pro, Variation: roundPercent(pro, maxInt(1, total))},
		TrialUsers:   StatValue{Value: trial, Variation: roundPercent(trial, maxInt(1, total))},
		TotalQuizzes: StatValue{Value: quizzes},
		TotalSources: StatValue{Value: sources},
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// UserDetail proxies the full per-user record, quizzes and sources included.
func (h *Handler) UserDetail(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	payload, err := h.authority.Get(r.Context(), sess.Token, "/admin/user/"+url.PathEscape(id))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteRaw(w, http.StatusOK, payload)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateUser registers a user through the Authority under the admin's token.
// Absent passwords get a generated temporary one.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Email == "" || req.Name == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email and name are required"))
		return
	}
	if req.Password == "" {
		req.Password = tempPassword()
	}

	created, err := h.authority.Register(r.Context(), sess.Token, authority.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(audit.KindUserCreated, sess.User.Email, "created "+req.Email)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    json.RawMessage(created),
	})
}

type deleteUserRequest struct {
	Email string `json:"email"`
}

// DeleteUser removes a user by email through the Authority's admin API.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	var req deleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Email == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "email is required"))
		return
	}

	if err := h.authority.Delete(r.Context(), sess.Token,
		"/admin/user/email/"+url.PathEscape(req.Email)); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.record(audit.KindUserDeleted, sess.User.Email, "deleted "+req.Email)
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DeleteQuizSource removes any user's quiz source.
func (h *Handler) DeleteQuizSource(w http.ResponseWriter, r *http.Request) {
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

func (h *Handler) fetchAllUsers(r *http.Request, token string) ([]adminUser, error) {
	payload, err := h.authority.Get(r.Context(), token, "/admin/allusers")
	if err != nil {
		return nil, err
	}
	var users []adminUser
	if err := json.Unmarshal(payload, &users); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeAuthorityContract, "authority returned malformed user listing", err)
	}
	return users, nil
}

func subscriptionStatus(sub *authority.Subscription) string {
	if sub == nil {
		return "unsubscribed"
	}
	switch sub.Status {
	case "active_monthly", "active_yearly":
		return "subscribed"
	case "expired":
		return "bounced"
	default:
		return "unsubscribed"
	}
}

func displayName(u adminUser) string {
	if u.Name != "" {
		return u.Name
	}
	if at := strings.IndexByte(u.Email, '@'); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

func joinDate(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return "N/A"
	}
	return fmt.Sprintf("%d/%d/%d", int(t.Month()), t.Day(), t.Year())
}

func roundPercent(part, whole int) int {
	return int(math.Round(float64(part) / float64(whole) * 100))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func tempPassword() string {
	return "Temp-" + uuid.NewString()[:13]
}

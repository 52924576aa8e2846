package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lsc-studio/lscauth"
	"github.com/lsc-studio/lscauth/middleware"
)

const (
	// AdminPlatformRole may change the status of other accounts.
	AdminPlatformRole = "ADMIN"

	maxBodyBytes = 1 << 20
)

// engineRateClasses names the rate class the Engine applies inside each operation.
var engineRateClasses = map[string]string{
	"/auth/register":            lscauth.RateClassRegister,
	"/auth/login":               lscauth.RateClassLogin,
	"/auth/refresh":             lscauth.RateClassRefresh,
	"/auth/verify-email":        lscauth.RateClassVerifyEmail,
	"/auth/resend-verification": lscauth.RateClassResendVerification,
	"/auth/forgot-password":     lscauth.RateClassResetRequest,
}

// Handler serves the authentication endpoints of an [lscauth.Engine].
type Handler struct {
	engine *lscauth.Engine
	logger *slog.Logger
}

// NewHandler returns the routed HTTP API. Every request carries the client IP and
// User-Agent in its context; routes without an Engine-level rate class are limited by
// the general class.
func NewHandler(engine *lscauth.Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{engine: engine, logger: logger}

	guard := middleware.Guard(engine)
	general := middleware.RateLimit(engine, lscauth.RateClassGeneral, logger)
	admin := func(next http.Handler) http.Handler {
		return guard(middleware.RequirePlatformRole(AdminPlatformRole)(next))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", h.Register)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.HandleFunc("POST /auth/refresh", h.Refresh)
	mux.Handle("POST /auth/logout", general(http.HandlerFunc(h.Logout)))
	mux.Handle("POST /auth/logout-all", general(guard(http.HandlerFunc(h.LogoutAll))))
	mux.HandleFunc("POST /auth/verify-email", h.VerifyEmail)
	mux.HandleFunc("POST /auth/resend-verification", h.ResendVerification)
	mux.HandleFunc("POST /auth/forgot-password", h.ForgotPassword)
	mux.Handle("POST /auth/reset-password", general(http.HandlerFunc(h.ResetPassword)))
	mux.Handle("POST /auth/change-password", general(guard(http.HandlerFunc(h.ChangePassword))))
	mux.Handle("GET /auth/me", general(guard(http.HandlerFunc(h.Me))))
	mux.Handle("PATCH /admin/users/{id}/status", general(admin(http.HandlerFunc(h.UpdateStatus))))
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteJSON(w, http.StatusNotFound, middleware.ErrorEnvelope{
			Error: middleware.ErrorBody{Code: "NOT_FOUND", Message: "Route not found"},
		})
	})

	return middleware.RequestContext(mux)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type statusRequest struct {
	Status lscauth.AccountStatus `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	User *lscauth.User `json:"user"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Register(r.Context(), lscauth.RegisterInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, res)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

// Refresh handles POST /auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, err := h.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

// Logout handles POST /auth/logout. Unknown tokens still answer 200.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// LogoutAll handles POST /auth/logout-all for the authenticated user.
func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	n, err := h.engine.LogoutAll(r.Context(), claims.Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, struct {
		Revoked int64 `json:"revoked"`
	}{Revoked: n})
}

// VerifyEmail handles POST /auth/verify-email.
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.engine.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

// ResendVerification handles POST /auth/resend-verification. The answer does not reveal
// whether the email is registered.
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResendVerification(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Message: "If the account exists and is not verified, a new verification email has been sent.",
	})
}

// ForgotPassword handles POST /auth/forgot-password. The answer does not reveal whether
// the email is registered.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{
		Message: "If the account exists, a password reset email has been sent.",
	})
}

// ResetPassword handles POST /auth/reset-password.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset"})
}

// ChangePassword handles POST /auth/change-password for the authenticated user.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims, _ := middleware.ClaimsFromContext(r.Context())
	if err := h.engine.ChangePassword(r.Context(), claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Password has been changed"})
}

// Me handles GET /auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	user, err := h.engine.GetUser(r.Context(), claims.Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

// UpdateStatus handles PATCH /admin/users/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.engine.UpdateAccountStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, userResponse{User: user})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Health(r.Context())
	code := http.StatusOK
	text := "ok"
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
		text = "degraded"
	}
	middleware.WriteJSON(w, code, map[string]any{
		"status": text,
		"store":  status.StoreAvailable,
		"redis":  !status.RedisEnabled || status.RedisAvailable,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, &lscauth.Error{Kind: lscauth.KindValidation, Message: "Request body must be valid JSON"})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if lscauth.KindOf(err) == lscauth.KindRateLimited {
		class, ok := engineRateClasses[r.URL.Path]
		if !ok {
			class = lscauth.RateClassGeneral
		}
		h.logger.WarnContext(r.Context(), "rate limit exceeded",
			"path", r.URL.Path,
			"ip", middleware.ClientIP(r),
			"class", class,
		)
	}

	var e *lscauth.Error
	if !errors.As(err, &e) || e.Kind == lscauth.KindInternal {
		h.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	middleware.WriteError(w, err)
}

package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"admincore.org/internal/auth"
	"admincore.org/internal/captcha"
	"admincore.org/internal/obs"
)

type captchaResponse struct {
	CaptchaID string `json:"captchaId"`
	Data      string `json:"data"`
}

type loginRequest struct {
	Username   string `json:"username"`
	CaptchaID  string `json:"captchaId"`
	VerifyCode string `json:"verifyCode"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleCaptcha(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	kind := q.Get("type")
	if kind == "" {
		kind = captcha.KindBase64
	}
	width := parseDimension(q.Get("width"))
	height := parseDimension(q.Get("height"))

	ch, err := a.captchas.Issue(r.Context(), kind, width, height)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "challenge generation failed")
		return
	}
	obs.ObserveCaptchaIssued()

	writeJSON(w, http.StatusOK, captchaResponse{
		CaptchaID: ch.ID,
		Data:      ch.Data,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "username and password are required")
		return
	}

	result, err := a.auth.Login(r.Context(), auth.LoginInput{
		Username:   req.Username,
		CaptchaID:  req.CaptchaID,
		VerifyCode: req.VerifyCode,
		Password:   req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrBadCaptcha):
			obs.ObserveCaptchaValidation("fail")
		case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, auth.ErrNoRoles):
			// The challenge passed before the login failed.
			obs.ObserveCaptchaValidation("ok")
		}
		obs.ObserveLogin(loginMetricResult(err))
		writeAuthError(w, err)
		return
	}

	obs.ObserveCaptchaValidation("ok")
	obs.ObserveLogin("success")
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "refreshToken is required")
		return
	}

	result, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_token", "authentication required")
		return
	}
	if err := a.auth.Logout(r.Context(), session.UserID); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func parseDimension(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func loginMetricResult(err error) string {
	switch {
	case errors.Is(err, auth.ErrBadCaptcha):
		return "bad_captcha"
	case errors.Is(err, auth.ErrBadCredentials):
		return "bad_credentials"
	case errors.Is(err, auth.ErrNoRoles):
		return "no_roles"
	default:
		return "error"
	}
}

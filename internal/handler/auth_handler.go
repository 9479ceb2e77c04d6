// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chirp/internal/account"
	"github.com/hitoshi/chirp/internal/model"
)

const sessionCookieName = "session_id"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (*model.Session, *model.Account, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error)
	CreateSession(ctx context.Context, accountID string) (*model.Session, error)
}

// SignupServiceInterface はアカウント登録に必要なサービスインターフェース。
type SignupServiceInterface interface {
	Signup(ctx context.Context, input account.SignupInput) (*model.Account, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	auth     AuthServiceInterface
	accounts SignupServiceInterface
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(auth AuthServiceInterface, accounts SignupServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		accounts: accounts,
		config:   config,
	}
}

// signupRequest はアカウント登録リクエストのボディ。
type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup は新規アカウントを登録し、そのままログイン状態にする。
// POST /api/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	acct, err := h.accounts.Signup(r.Context(), account.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		FullName: req.FullName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 登録直後に自動ログイン
	session, err := h.auth.CreateSession(r.Context(), acct.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)

	slog.Info("account signed up",
		slog.String("account_id", acct.ID),
		slog.String("username", acct.Username),
	)

	writeJSON(w, http.StatusCreated, toAccountResponse(acct))
}

// Login はメールアドレスとパスワードでログインする。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	session, acct, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.setSessionCookie(w, session.ID, h.config.SessionMaxAge)

	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// Logout はセッションを破棄する。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.auth.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.setSessionCookie(w, "", -1)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインアカウント情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	acct, err := h.auth.GetCurrentAccount(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(acct))
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
// maxAgeに負数を渡すとCookieを削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

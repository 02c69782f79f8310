package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/go-chi/chi/v5"
)

// Service is the engine surface the HTTP layer needs. *goIdentity.Engine
// implements it.
type Service interface {
	middleware.Verifier
	middleware.Authorizer
	Register(ctx context.Context, req goIdentity.RegisterRequest) (goIdentity.Identity, error)
	Login(ctx context.Context, req goIdentity.LoginRequest) (goIdentity.Session, error)
	IssueOTP(ctx context.Context, phone string, purpose goIdentity.OTPPurpose) error
	RefreshToken(ctx context.Context, refreshToken string) (goIdentity.TokenPair, error)
	RevokeToken(ctx context.Context, accessToken string) error
	Logout(ctx context.Context, userID string) error
}

type handler struct {
	svc    Service
	logger *slog.Logger
}

const maxBodyBytes = 64 << 10

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrInvalidRequest, err)
	}
	return nil
}

type profileBody struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

func (p profileBody) hints() goIdentity.ProfileHints {
	return goIdentity.ProfileHints{Email: p.Email, DisplayName: p.DisplayName, AvatarURL: p.AvatarURL}
}

// socialFor builds the external identity for social providers and returns nil
// for the others.
func socialFor(p goIdentity.Provider, externalID string) (goIdentity.SocialIdentity, error) {
	if !p.IsSocial() {
		return nil, nil
	}
	return goIdentity.NewSocialIdentity(p, externalID)
}

type registerBody struct {
	Provider      goIdentity.Provider `json:"provider"`
	DisplayName   string              `json:"display_name"`
	TermsAccepted bool                `json:"terms_accepted"`
	Email         string              `json:"email"`
	Phone         string              `json:"phone"`
	Username      string              `json:"username"`
	Password      string              `json:"password"`
	OTPCode       string              `json:"otp_code"`
	SocialID      string              `json:"social_id"`
	Profile       profileBody         `json:"profile"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	social, err := socialFor(body.Provider, body.SocialID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	id, err := h.svc.Register(r.Context(), goIdentity.RegisterRequest{
		DisplayName:   body.DisplayName,
		TermsAccepted: body.TermsAccepted,
		Provider:      body.Provider,
		Email:         body.Email,
		Phone:         body.Phone,
		Username:      body.Username,
		Password:      body.Password,
		OTPCode:       body.OTPCode,
		Social:        social,
		Profile:       body.Profile.hints(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

type loginBody struct {
	Provider   goIdentity.Provider `json:"provider"`
	Identifier string              `json:"identifier"`
	Password   string              `json:"password"`
	OTPCode    string              `json:"otp_code"`
	SocialID   string              `json:"social_id"`
	Profile    profileBody         `json:"profile"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	social, err := socialFor(body.Provider, body.SocialID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	sess, err := h.svc.Login(r.Context(), goIdentity.LoginRequest{
		Provider:   body.Provider,
		Identifier: body.Identifier,
		Password:   body.Password,
		OTPCode:    body.OTPCode,
		Social:     social,
		Profile:    body.Profile.hints(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type otpBody struct {
	Phone   string                `json:"phone"`
	Purpose goIdentity.OTPPurpose `json:"purpose"`
}

func (h *handler) issueOTP(w http.ResponseWriter, r *http.Request) {
	var body otpBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if body.Purpose == "" {
		body.Purpose = goIdentity.OTPPurposeLogin
	}
	if err := h.svc.IssueOTP(r.Context(), body.Phone, body.Purpose); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	pair, err := h.svc.RefreshToken(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// logout revokes the presented access token and every outstanding token of
// its holder. Without revocation only last-seen is recorded.
func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := goIdentity.ClaimsFromContext(r.Context())
	token, _ := bearerFrom(r)
	err := h.svc.RevokeToken(r.Context(), token)
	if err != nil && !errors.Is(err, goIdentity.ErrInvalidToken) && !errors.Is(err, goIdentity.ErrInvalidRequest) {
		writeError(w, h.logger, err)
		return
	}
	if err := h.svc.Logout(r.Context(), claims.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type meBody struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
	RoleID      string `json:"role_id"`
	RoleName    string `json:"role_name,omitempty"`
	Department  string `json:"department,omitempty"`
	Team        string `json:"team,omitempty"`
	Verified    bool   `json:"verified"`
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	c, _ := goIdentity.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, meBody{
		UserID:      c.UserID,
		Email:       c.Email,
		Phone:       c.Phone,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		RoleID:      c.RoleID,
		RoleName:    c.RoleName,
		Department:  c.Department,
		Team:        c.Team,
		Verified:    c.Verified,
	})
}

type authorizeBody struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Target   struct {
		UserID     string `json:"user_id"`
		Department string `json:"department"`
		Team       string `json:"team"`
	} `json:"target"`
}

// authorize lets a front end ask whether the caller may act on a record.
func (h *handler) authorize(w http.ResponseWriter, r *http.Request) {
	var body authorizeBody
	if err := decode(w, r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, _ := goIdentity.ClaimsFromContext(r.Context())
	err := h.svc.Authorize(c, body.Action, body.Resource, permission.Target{
		UserID:     body.Target.UserID,
		Department: body.Target.Department,
		Team:       body.Target.Team,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

func (h *handler) module(w http.ResponseWriter, r *http.Request) {
	c, _ := goIdentity.ClaimsFromContext(r.Context())
	name := chi.URLParam(r, "module")
	writeJSON(w, http.StatusOK, map[string]any{
		"module":  name,
		"allowed": h.svc.CanAccessModule(c, name),
	})
}

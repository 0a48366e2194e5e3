package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"instituteos.app/internal/audit"
	"instituteos.app/internal/auth"
	"instituteos.app/internal/tenancy"
)

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	InstituteID string `json:"instituteId,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID := strings.TrimSpace(req.InstituteID)
	if instituteID == "" && tenancy.IsTenant(r.Context()) {
		instituteID, _ = tenancy.InstituteFromContext(r.Context())
	}

	session, err := a.Auth.Login(r.Context(), req.Email, req.Password, instituteID)
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.EventLoginFailed, zap.String("email", strings.ToLower(strings.TrimSpace(req.Email))))
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventLogin,
		zap.String("user_id", session.User.ID),
		zap.String("login_institute_id", session.User.InstituteID))
	a.respondSession(w, r, session)
}

func (a *API) handlePlatformLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.Auth.PlatformLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		_ = audit.LogEvent(r.Context(), audit.EventLoginFailed,
			zap.String("email", strings.ToLower(strings.TrimSpace(req.Email))),
			zap.String("target", string(auth.AudiencePlatform)))
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventPlatformLogin, zap.String("user_id", session.User.ID))
	a.respondSession(w, r, session)
}

func (a *API) respondSession(w http.ResponseWriter, r *http.Request, session auth.Session) {
	http.SetCookie(w, auth.SessionCookie(session.AccessToken, a.Resolver.Classify(r.Host), a.SecureCookies))
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearSessionCookie(a.Resolver.Classify(r.Host), a.SecureCookies))
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	instituteID, _ := tenancy.InstituteFromContext(r.Context())
	user, err := a.Auth.Register(r.Context(), principalOf(r), instituteID, in)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventUserRegistered,
		zap.String("user_id", user.ID),
		zap.String("role", in.Role))
	writeJSON(w, http.StatusCreated, auth.Profile{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		InstituteID: user.InstituteID,
		Roles:       []string{in.Role},
		Target:      auth.AudienceInstitute,
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/relaymesh/devicegate/internal/domain"
	"github.com/relaymesh/devicegate/internal/http/response"
	"github.com/relaymesh/devicegate/internal/observability"
	"github.com/relaymesh/devicegate/internal/repository"
	"github.com/relaymesh/devicegate/internal/service"
)

// DeviceHandler exposes the challenge/session operations over HTTP.
type DeviceHandler struct {
	challenges service.ChallengeServiceInterface
	sessions   service.SessionServiceInterface
	validate   *validator.Validate
}

func NewDeviceHandler(challenges service.ChallengeServiceInterface, sessions service.SessionServiceInterface) *DeviceHandler {
	return &DeviceHandler{
		challenges: challenges,
		sessions:   sessions,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

type issueChallengeRequest struct {
	DeviceID string `json:"device_id" validate:"required"`
}

type issueChallengeResponse struct {
	ToSign string `json:"to_sign"`
}

type createSessionRequest struct {
	DeviceID    string `json:"device_id" validate:"required"`
	PublicKey   string `json:"public_key" validate:"required"`
	Signature   string `json:"signature" validate:"required"`
	DeviceType  int32  `json:"device_type" validate:"gte=0,lte=2"`
	AppVersion  string `json:"app_version"`
	DeviceOS    string `json:"device_os"`
	NotifyToken string `json:"notify_token"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type sessionView struct {
	DeviceID    string `json:"device_id"`
	PublicKey   string `json:"public_key"`
	NotifyToken string `json:"notify_token"`
	DeviceType  int32  `json:"device_type"`
	AppVersion  string `json:"app_version"`
	DeviceOS    string `json:"device_os"`
	IsOnline    bool   `json:"is_online"`
}

type setOnlineRequest struct {
	IsOnline *bool `json:"is_online" validate:"required"`
}

func (h *DeviceHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req issueChallengeRequest
	if !h.decode(w, r, &req) {
		return
	}
	toSign, st := h.challenges.IssueChallenge(r.Context(), req.DeviceID)
	if !st.IsOK() {
		response.Status(w, r, st, nil)
		return
	}
	observability.Audit(r, "challenge.issued", "device_id", req.DeviceID)
	response.Status(w, r, st, issueChallengeResponse{ToSign: toSign})
}

func (h *DeviceHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	sessionID, st := h.sessions.CreateSession(r.Context(), service.CreateSessionParams{
		DeviceID:    req.DeviceID,
		PublicKey:   req.PublicKey,
		Signature:   req.Signature,
		DeviceType:  domain.DeviceType(req.DeviceType),
		AppVersion:  req.AppVersion,
		DeviceOS:    req.DeviceOS,
		NotifyToken: req.NotifyToken,
	})
	if !st.IsOK() {
		observability.Audit(r, "session.rejected", "device_id", req.DeviceID, "status", st.Code.String())
		response.Status(w, r, st, nil)
		return
	}
	observability.Audit(r, "session.created", "device_id", req.DeviceID, "session_id", sessionID)
	response.Status(w, r, st, createSessionResponse{SessionID: sessionID})
}

func (h *DeviceHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSessionID):
			response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid format for sessionID")
		case errors.Is(err, repository.ErrSessionNotFound):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "no session found for sessionID")
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", err.Error())
		}
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView{
		DeviceID:    session.DeviceID,
		PublicKey:   session.PublicKey,
		NotifyToken: session.NotifyToken,
		DeviceType:  int32(session.DeviceType),
		AppVersion:  session.AppVersion,
		DeviceOS:    session.DeviceOS,
		IsOnline:    session.IsOnline,
	})
}

func (h *DeviceHandler) SetOnlineStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	var req setOnlineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.sessions.SetOnlineStatus(r.Context(), sessionID, *req.IsOnline); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"is_online": *req.IsOnline})
}

func (h *DeviceHandler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed request body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return false
	}
	return true
}

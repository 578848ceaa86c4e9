package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/auth"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/qr"
	"github.com/codescrafter/luxury-backend-sub000/internal/utils"
)

type Handler struct {
	QrService *qr.Service
	Logger    *logger.Logger
}

func NewHandler(service *qr.Service, log *logger.Logger) *Handler {
	return &Handler{QrService: service, Logger: log}
}

// RegisterProtected mounts the endpoints that sit behind the auth
// middleware.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Route("/qr", func(r chi.Router) {
		r.Post("/generate", h.Generate)
		r.Get("/booking/{bookingID}", h.GetForBooking)
		r.Get("/statistics", h.Statistics)
		r.Post("/cleanup", h.Cleanup)
	})
}

// RegisterPublic mounts verify, which is deliberately unauthenticated:
// the redemption token itself is the credential.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/qr/verify", h.Verify)
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RoleUser, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to generate QR codes", err)
		return
	}

	var req models.QrGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	issued, err := h.QrService.Issue(r.Context(), actor.UserID, req.BookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Generate QR for %s: %v", req.BookingID, err))
		utils.WriteError(w, "Failed to generate QR", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("QR generated", issued))
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.QrVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	// Possession of the token is the authorization. If the scanner sent a
	// bearer token anyway, record who redeemed.
	redeemedBy := ""
	if raw, err := auth.ExtractTokenFromRequest(r); err == nil {
		if actor, err := auth.ActorFromJWT(raw); err == nil {
			redeemedBy = actor.UserID
		}
	}

	result, err := h.QrService.Verify(r.Context(), req.Token, redeemedBy)
	if err != nil {
		utils.WriteError(w, "Verification failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Token redeemed", result))
}

func (h *Handler) GetForBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor); err != nil {
		utils.WriteError(w, "Authentication required", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	record, err := h.QrService.GetForBooking(r.Context(), actor, bookingID)
	if err != nil {
		utils.WriteError(w, "Failed to fetch QR", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("QR found", record))
}

func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RoleAdmin); err != nil {
		utils.WriteError(w, "Admin role required", err)
		return
	}

	stats, err := h.QrService.Statistics(r.Context())
	if err != nil {
		utils.WriteError(w, "Failed to compute statistics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("QR statistics", stats))
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RoleAdmin); err != nil {
		utils.WriteError(w, "Admin role required", err)
		return
	}

	count, err := h.QrService.CleanupExpired(r.Context())
	if err != nil {
		utils.WriteError(w, "Cleanup failed", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Cleanup complete", map[string]int{"expired": count}))
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codescrafter/luxury-backend-sub000/internal/apperr"
	"github.com/codescrafter/luxury-backend-sub000/internal/auth"
	"github.com/codescrafter/luxury-backend-sub000/internal/booking"
	"github.com/codescrafter/luxury-backend-sub000/internal/logger"
	"github.com/codescrafter/luxury-backend-sub000/internal/models"
	"github.com/codescrafter/luxury-backend-sub000/internal/utils"
)

type Handler struct {
	BookingService *booking.Service
	Logger         *logger.Logger
}

func NewHandler(service *booking.Service, log *logger.Logger) *Handler {
	return &Handler{BookingService: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{bookingID}", h.GetBooking)
		r.Post("/{bookingID}/approve", h.ApproveBooking)
		r.Post("/{bookingID}/reject", h.RejectBooking)
		r.Post("/{bookingID}/cancel", h.CancelBooking)
		r.Post("/{bookingID}/complete", h.CompleteBooking)
		r.Put("/{bookingID}/payment-status", h.UpdatePaymentStatus)
	})
	r.Route("/availability", func(r chi.Router) {
		r.Post("/block", h.BlockProduct)
		r.Get("/{productType}/{productID}", h.ListProductHolds)
	})
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RoleUser); err != nil {
		utils.WriteError(w, "Not allowed to create bookings", err)
		return
	}

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	created, err := h.BookingService.Create(r.Context(), actor, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		utils.WriteError(w, "Failed to create booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", created))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor); err != nil {
		utils.WriteError(w, "Authentication required", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	result, err := h.BookingService.Get(r.Context(), actor, bookingID)
	if err != nil {
		utils.WriteError(w, "Failed to fetch booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking found", result))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor); err != nil {
		utils.WriteError(w, "Authentication required", err)
		return
	}

	bookings, err := h.BookingService.ListForActor(r.Context(), actor)
	if err != nil {
		utils.WriteError(w, "Failed to list bookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Bookings", bookings))
}

func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to approve bookings", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	result, err := h.BookingService.Approve(r.Context(), actor, bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ApproveBooking %s: %v", bookingID, err))
		utils.WriteError(w, "Failed to approve booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking approved", result))
}

func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to reject bookings", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	var req models.RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	result, err := h.BookingService.Reject(r.Context(), actor, bookingID, req.Reason)
	if err != nil {
		utils.WriteError(w, "Failed to reject booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking rejected", result))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RoleUser, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to cancel bookings", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	var req models.CancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // reason is optional
	}

	result, err := h.BookingService.Cancel(r.Context(), actor, bookingID, req.Reason)
	if err != nil {
		utils.WriteError(w, "Failed to cancel booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", result))
}

func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to complete bookings", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	result, err := h.BookingService.Complete(r.Context(), actor, bookingID)
	if err != nil {
		utils.WriteError(w, "Failed to complete booking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Booking completed", result))
}

func (h *Handler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor); err != nil {
		utils.WriteError(w, "Authentication required", err)
		return
	}

	bookingID := chi.URLParam(r, "bookingID")
	var req models.PaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	result, err := h.BookingService.UpdatePaymentStatus(r.Context(), actor, bookingID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdatePaymentStatus %s: %v", bookingID, err))
		utils.WriteError(w, "Failed to update payment status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment status updated", result))
}

func (h *Handler) BlockProduct(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor, models.RolePartner); err != nil {
		utils.WriteError(w, "Not allowed to block availability", err)
		return
	}

	var req models.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, "Invalid request body", apperr.Validation("malformed JSON: %v", err))
		return
	}

	entry, err := h.BookingService.BlockProduct(r.Context(), actor, req)
	if err != nil {
		utils.WriteError(w, "Failed to block availability", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Availability blocked", entry))
}

func (h *Handler) ListProductHolds(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	if err := auth.Require(actor); err != nil {
		utils.WriteError(w, "Authentication required", err)
		return
	}

	productType := models.ProductType(chi.URLParam(r, "productType"))
	productID := chi.URLParam(r, "productID")
	entries, err := h.BookingService.ProductHolds(r.Context(), productType, productID)
	if err != nil {
		utils.WriteError(w, "Failed to list availability", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Availability holds", entries))
}

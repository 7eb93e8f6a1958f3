package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/temidayoh/esusu/internal/contribution"
	"github.com/temidayoh/esusu/internal/group"
	"github.com/temidayoh/esusu/pkg/middleware"
	"github.com/temidayoh/esusu/pkg/response"
)

// signatureHeader carries the provider's HMAC over the raw request body
const signatureHeader = "X-Paystack-Signature"

// maxWebhookBody bounds webhook payloads at 1 MiB
const maxWebhookBody = 1 << 20

// Handler handles HTTP requests for payment operations
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for authenticated payment endpoints.
// The webhook endpoint is mounted separately, outside auth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/initiate", h.Initiate)
	r.Get("/", h.List)

	return r
}

// Initiate handles POST /payments/initiate
// @Summary      Initiate a payment
// @Description  Create a pending transaction and mint the reference to hand to the payment gateway
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body InitiateRequest true "Payment initiation request"
// @Success      201 {object} response.APIResponse{data=TransactionResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Router       /payments/initiate [post]
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	txn, err := h.service.Initiate(r.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, group.ErrGroupNotFound), errors.Is(err, contribution.ErrContributionNotFound):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNotMember):
			response.Forbidden(w, err.Error())
		case errors.Is(err, ErrContributionNotPayable),
			errors.Is(err, ErrDepositNotRequired),
			errors.Is(err, ErrDepositAlreadyPaid),
			errors.Is(err, ErrDuplicateReference):
			response.Conflict(w, err.Error())
		case errors.Is(err, ErrBadPayload):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to initiate payment")
		}
		return
	}

	response.JSON(w, http.StatusCreated, txn.ToResponse())
}

// List handles GET /payments
// @Summary      List my transactions
// @Description  Get a paginated list of the current user's ledger transactions, newest first
// @Tags         payments
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]TransactionResponse}
// @Router       /payments [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	page, perPage := pagination(r)
	transactions, total, err := h.service.ListByUserID(r.Context(), userID, page, perPage)
	if err != nil {
		response.InternalError(w, "Failed to list transactions")
		return
	}

	responses := make([]*TransactionResponse, len(transactions))
	for i, t := range transactions {
		responses[i] = t.ToResponse()
	}

	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	response.JSONWithMeta(w, http.StatusOK, responses, meta)
}

// Webhook handles POST /payments/webhook
//
// The status code is the retry contract with the provider: 2xx stops
// redelivery, 4xx rejects without retry, 5xx asks for another delivery.
// @Summary      Receive a payment provider webhook
// @Description  Verify, record and idempotently apply an external payment confirmation
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200 {object} response.APIResponse{data=ReconcileAck}
// @Failure      400 {object} response.APIResponse
// @Failure      401 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      503 {object} response.APIResponse
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "Failed to read request body")
		return
	}

	ack, err := h.service.Reconcile(r.Context(), body, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidSignature):
			response.Unauthorized(w, "Invalid signature")
		case errors.Is(err, ErrBadPayload):
			response.BadRequest(w, err.Error())
		case !Retryable(err):
			response.Conflict(w, err.Error())
		default:
			response.ServiceUnavailable(w, "Reconciliation temporarily unavailable")
		}
		return
	}

	response.JSON(w, http.StatusOK, ack)
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	return page, perPage
}

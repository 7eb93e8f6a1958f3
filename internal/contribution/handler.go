package contribution

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/temidayoh/esusu/pkg/middleware"
	"github.com/temidayoh/esusu/pkg/response"
)

// Handler handles HTTP requests for contribution operations
type Handler struct {
	service *Service
}

// NewHandler creates a new contribution handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for contribution endpoints
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/sweep", h.Sweep)

	return r
}

// List handles GET /contributions
// @Summary      List contributions
// @Description  List contributions for the current user, optionally filtered by group, cycle, or status
// @Tags         contributions
// @Produce      json
// @Param        group_id query int false "Filter by group"
// @Param        cycle query int false "Filter by cycle"
// @Param        status query string false "Filter by status" Enums(pending, paid, late, missed)
// @Param        page query int false "Page number" default(1)
// @Param        per_page query int false "Items per page" default(20)
// @Success      200 {object} response.APIResponse{data=[]Contribution}
// @Router       /contributions [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "Authentication required")
		return
	}

	filter := ListFilter{}
	q := r.URL.Query()

	if groupIDStr := q.Get("group_id"); groupIDStr != "" {
		groupID, err := strconv.ParseInt(groupIDStr, 10, 64)
		if err != nil {
			response.BadRequest(w, "Invalid group ID")
			return
		}
		filter.GroupID = &groupID
	} else {
		// Without a group filter, only the caller's own contributions are visible
		filter.UserID = &userID
	}

	if cycleStr := q.Get("cycle"); cycleStr != "" {
		cycle, err := strconv.Atoi(cycleStr)
		if err != nil {
			response.BadRequest(w, "Invalid cycle")
			return
		}
		filter.Cycle = &cycle
	}

	if statusStr := q.Get("status"); statusStr != "" {
		status := Status(statusStr)
		switch status {
		case StatusPending, StatusPaid, StatusLate, StatusMissed:
			filter.Status = &status
		default:
			response.BadRequest(w, "Invalid status")
			return
		}
	}

	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	contributions, total, err := h.service.List(r.Context(), filter, page, perPage)
	if err != nil {
		response.InternalError(w, "Failed to list contributions")
		return
	}

	meta := &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: (total + perPage - 1) / perPage,
	}

	response.JSONWithMeta(w, http.StatusOK, contributions, meta)
}

// Sweep handles POST /contributions/sweep
// @Summary      Run the overdue sweep
// @Description  Transition overdue pending contributions to late and expired late ones to missed. Invoked by an external scheduler.
// @Tags         contributions
// @Produce      json
// @Success      200 {object} response.APIResponse
// @Router       /contributions/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	late, missed, err := h.service.MarkOverdue(r.Context(), time.Now().UTC())
	if err != nil {
		response.InternalError(w, "Failed to run overdue sweep")
		return
	}

	response.JSON(w, http.StatusOK, map[string]int64{
		"marked_late":   late,
		"marked_missed": missed,
	})
}

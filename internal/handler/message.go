package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/campaign"
	domain "github.com/oggyb/outreach-campaigns/internal/domain/message"
	"github.com/oggyb/outreach-campaigns/internal/request"
	"github.com/oggyb/outreach-campaigns/internal/response"
	"github.com/oggyb/outreach-campaigns/internal/scheduler"
	"github.com/oggyb/outreach-campaigns/internal/service"
	"go.uber.org/zap"
)

// LeadSource supplies the default campaign recipients.
type LeadSource func() ([]campaign.Lead, error)

// MessageHandler wires HTTP endpoints to the message and reconciliation
// services and the background scheduler.
type MessageHandler struct {
	msgSvc service.MessageService
	engine service.ReconcileService
	schSvc scheduler.SchedulerService
	leads  LeadSource
	logger *zap.Logger
}

// NewMessageHandler constructs a new MessageHandler with its dependencies.
func NewMessageHandler(
	msgSvc service.MessageService,
	engine service.ReconcileService,
	schSvc scheduler.SchedulerService,
	leads LeadSource,
	logger *zap.Logger,
) *MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageHandler{
		msgSvc: msgSvc,
		engine: engine,
		schSvc: schSvc,
		leads:  leads,
		logger: logger,
	}
}

// StartStopScheduler godoc
// @Summary     Control scheduler
// @Description Starts or stops the background monitor loop based on the given action.
// @Tags        scheduler
// @Accept      json
// @Produce     json
// @Param       request body request.SchedulerRequest true "Scheduler action (start|stop)"
// @Success     200 {object} response.SchedulerControlResponse
// @Failure     400 {object} response.JSONResponse
// @Router      /scheduler [post]
func (h *MessageHandler) StartStopScheduler(w http.ResponseWriter, r *http.Request) {
	var req request.SchedulerRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		err error
		msg string
	)
	switch req.Action {
	case "start":
		err = h.schSvc.Start()
		msg = "scheduler started"
	case "stop":
		err = h.schSvc.Stop()
		msg = "scheduler stopped"
	default:
		response.RespondError(w, http.StatusBadRequest, "action must be 'start' or 'stop'")
		return
	}
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, response.SchedulerControlPayload{
		Message: msg,
		Running: h.schSvc.IsRunning(),
	})
}

// SchedulerStatus godoc
// @Summary     Scheduler state
// @Description Reports whether the background monitor loop is running.
// @Tags        scheduler
// @Produce     json
// @Success     200 {object} response.SchedulerControlResponse
// @Router      /scheduler [get]
func (h *MessageHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	running := h.schSvc.IsRunning()
	msg := "scheduler stopped"
	if running {
		msg = "scheduler running"
	}
	response.RespondJSON(w, http.StatusOK, response.SchedulerControlPayload{Message: msg, Running: running})
}

// ListMessages godoc
// @Summary     List messages
// @Description Returns tracked messages, optionally filtered by delivery status.
// @Tags        messages
// @Produce     json
// @Param       status query string false "Delivery status (queued|sent|failed|invalid_payload|unknown|replied)"
// @Param       limit  query int    false "Page size (max 500)" default(50)
// @Param       offset query int    false "Offset"              default(0)
// @Success     200 {object} response.MessagesResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages [get]
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	offset := 0
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	status := domain.Status(strings.ToLower(strings.TrimSpace(q.Get("status"))))

	items, total, err := h.msgSvc.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error("list messages", zap.Error(err))
		response.RespondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.MessagesPayload{
		Items:  response.FromDomainMessages(items),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetMessage godoc
// @Summary     Get message
// @Description Returns the most recent message tracked under a provider message id.
// @Tags        messages
// @Produce     json
// @Param       providerID path string true "Provider message id"
// @Success     200 {object} response.MessageResponse
// @Failure     404 {object} response.JSONResponse
// @Router      /messages/{providerID} [get]
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.msgSvc.GetByProviderID(r.Context(), r.PathValue("providerID"))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.Error("get message", zap.Error(err))
		}
		response.RespondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.MessagePayload{Item: response.FromDomainMessage(m)})
}

// GetStats godoc
// @Summary     Campaign statistics
// @Description Returns delivery, reply and follow-up counters.
// @Tags        messages
// @Produce     json
// @Success     200 {object} response.StatsResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages/stats [get]
func (h *MessageHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.msgSvc.Stats(r.Context())
	if err != nil {
		h.logger.Error("message stats", zap.Error(err))
		response.RespondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.StatsPayload{
		Total:         st.Total,
		Delivered:     st.Delivered,
		Failed:        st.Failed,
		Queued:        st.Queued,
		Replies:       st.Replies,
		FollowupsSent: st.FollowupsSent,
		SendAttempts:  st.SendAttempts,
	})
}

// LaunchCampaign godoc
// @Summary     Launch campaign
// @Description Sends a templated message to every lead and starts tracking it. With an empty body the configured leads file is used.
// @Tags        campaigns
// @Accept      json
// @Produce     json
// @Param       request body request.CampaignRequest false "Leads"
// @Success     200 {object} response.CampaignResponse
// @Failure     400 {object} response.JSONResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /campaigns [post]
func (h *MessageHandler) LaunchCampaign(w http.ResponseWriter, r *http.Request) {
	var req request.CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	leads := make([]campaign.Lead, 0, len(req.Leads))
	for _, l := range req.Leads {
		leads = append(leads, campaign.Lead{Name: l.Name, Phone: l.Phone, InterestArea: l.InterestArea})
	}

	if len(leads) == 0 {
		if h.leads == nil {
			response.RespondError(w, http.StatusBadRequest, "no leads given")
			return
		}
		loaded, err := h.leads()
		if err != nil {
			h.logger.Error("load leads", zap.Error(err))
			response.RespondError(w, http.StatusBadRequest, "cannot load leads file")
			return
		}
		leads = loaded
	}

	queued, total, err := h.msgSvc.RunCampaign(r.Context(), leads)
	if err != nil {
		if errors.Is(err, service.ErrNoLeads) {
			response.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("run campaign", zap.Error(err))
		response.RespondServiceError(w, err)
		return
	}

	response.RespondJSON(w, http.StatusOK, response.CampaignPayload{Queued: queued, Total: total})
}

// RetryFailed godoc
// @Summary     Retry failed messages
// @Description Re-sends every failed message that is due for a retry.
// @Tags        messages
// @Produce     json
// @Success     200 {object} response.OperationResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages/retry [post]
func (h *MessageHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.RetryFailed(r.Context(), nowUTC()); err != nil {
		h.operationFailed(w, "retry failed", err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.OperationPayload{Message: "retry completed"})
}

// SendFollowups godoc
// @Summary     Send follow-ups
// @Description Sends the follow-up to every silent recipient that is due.
// @Tags        messages
// @Produce     json
// @Success     200 {object} response.OperationResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages/followups [post]
func (h *MessageHandler) SendFollowups(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.SendFollowups(r.Context(), nowUTC()); err != nil {
		h.operationFailed(w, "send followups", err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.OperationPayload{Message: "follow-ups completed"})
}

// Refresh godoc
// @Summary     Refresh statuses
// @Description Polls the provider for delivery statuses and then for replies.
// @Tags        messages
// @Produce     json
// @Success     200 {object} response.OperationResponse
// @Failure     503 {object} response.JSONResponse
// @Router      /messages/refresh [post]
func (h *MessageHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Refresh(r.Context()); err != nil {
		h.operationFailed(w, "refresh", err)
		return
	}
	response.RespondJSON(w, http.StatusOK, response.OperationPayload{Message: "refresh completed"})
}

func (h *MessageHandler) operationFailed(w http.ResponseWriter, op string, err error) {
	h.logger.Error("manual operation failed", zap.String("op", op), zap.Error(err))
	response.RespondServiceError(w, err)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/commhub/pkg/commhub"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/notifications"
)

type cancelResponse struct {
	MessageID     string `json:"message_id"`
	CancelledJobs int    `json:"cancelled_jobs"`
}

type readRequest struct {
	UserID  string            `json:"user_id"`
	Channel messaging.Channel `json:"channel,omitempty"`
}

type notificationsResponse struct {
	Notifications []notifications.Notification `json:"notifications"`
	Unread        int                          `json:"unread"`
}

type approveRequest struct {
	ApproverID string `json:"approver_id"`
}

type readNotificationsRequest struct {
	IDs []string `json:"ids"`
}

func (h *handler) triggerEvent(w http.ResponseWriter, r *http.Request) {
	eventType := messaging.EventType(chi.URLParam(r, "eventType"))

	data := messaging.EventData{}
	if err := h.decodeOptional(w, r, &data); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.TriggerNotification(r.Context(), eventType, data)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res.MessageIDs == nil {
		res.MessageIDs = []string{}
	}
	h.writeJSON(w, r, http.StatusAccepted, res)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var msg messaging.Message
	if err := h.decode(w, r, &msg); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.Send(r.Context(), msg)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

func (h *handler) sendFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req commhub.TemplateMessage
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.SendFromTemplate(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

func (h *handler) approveMessage(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.ApproveMessage(r.Context(), chi.URLParam(r, "id"), req.ApproverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, res)
}

func (h *handler) getMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.hub.Message(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, msg)
}

func (h *handler) cancelMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.hub.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, cancelResponse{MessageID: id, CancelledJobs: n})
}

func (h *handler) markMessageRead(w http.ResponseWriter, r *http.Request) {
	var req readRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		h.writeError(w, r, fmt.Errorf("%w: user_id is required", ErrInvalidBody))
		return
	}

	if err := h.hub.MarkRead(r.Context(), chi.URLParam(r, "id"), req.UserID, req.Channel); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request) {
	var resp messaging.Response
	if err := h.decode(w, r, &resp); err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.hub.Respond(r.Context(), chi.URLParam(r, "id"), resp)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, msg)
}

// recordDelivery accepts delivery callbacks from external channel providers.
func (h *handler) recordDelivery(w http.ResponseWriter, r *http.Request) {
	var u commhub.DeliveryUpdate
	if err := h.decode(w, r, &u); err != nil {
		h.writeError(w, r, err)
		return
	}
	u.MessageID = chi.URLParam(r, "id")

	msg, err := h.hub.RecordDelivery(r.Context(), u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, msg)
}

func (h *handler) deliveryReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.hub.DeliveryReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, report)
}

func (h *handler) sendGroupMessage(w http.ResponseWriter, r *http.Request) {
	var gm commhub.GroupMessage
	if err := h.decode(w, r, &gm); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.SendGroupMessage(r.Context(), chi.URLParam(r, "id"), gm)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

func (h *handler) sendEmergencyAlert(w http.ResponseWriter, r *http.Request) {
	var alert commhub.EmergencyAlert
	if err := h.decode(w, r, &alert); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.hub.SendEmergencyAlert(r.Context(), alert)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, res)
}

func (h *handler) startCoordination(w http.ResponseWriter, r *http.Request) {
	var req commhub.CoordinationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.hub.StartElderCoordination(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, c)
}

func (h *handler) addDecision(w http.ResponseWriter, r *http.Request) {
	var req commhub.DecisionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, err := h.hub.AddElderDecision(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, c)
}

func (h *handler) getCoordination(w http.ResponseWriter, r *http.Request) {
	c, err := h.hub.Coordination(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, c)
}

func (h *handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.hub.Preferences(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, prefs)
}

func (h *handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs messaging.Preferences
	if err := h.decode(w, r, &prefs); err != nil {
		h.writeError(w, r, err)
		return
	}
	prefs.UserID = chi.URLParam(r, "id")

	saved, err := h.hub.UpdatePreferences(r.Context(), prefs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, saved)
}

// listNotifications supports ?unread=true, ?limit= and ?offset=.
func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	q := r.URL.Query()

	var opts notifications.ListOptions
	var err error
	if v := q.Get("unread"); v != "" {
		if opts.OnlyUnread, err = strconv.ParseBool(v); err != nil {
			h.writeError(w, r, fmt.Errorf("%w: unread: %w", ErrInvalidBody, err))
			return
		}
	}
	if opts.Limit, err = queryInt(q.Get("limit")); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: limit: %w", ErrInvalidBody, err))
		return
	}
	if opts.Offset, err = queryInt(q.Get("offset")); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: offset: %w", ErrInvalidBody, err))
		return
	}

	items, err := h.inbox.List(r.Context(), userID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	unread, err := h.inbox.CountUnread(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	h.writeJSON(w, r, http.StatusOK, notificationsResponse{Notifications: items, Unread: unread})
}

// readNotifications marks the listed ids as read, or every notification when none are given.
func (h *handler) readNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req readNotificationsRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	var err error
	if len(req.IDs) == 0 {
		err = h.inbox.MarkAllRead(r.Context(), userID)
	} else {
		err = h.inbox.MarkRead(r.Context(), userID, req.IDs...)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNegative = errors.New("must not be negative")

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errNegative
	}
	return n, nil
}

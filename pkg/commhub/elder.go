package commhub

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/commhub/pkg/feature"
	"github.com/dmitrymomot/commhub/pkg/logger"
	"github.com/dmitrymomot/commhub/pkg/messaging"
	"github.com/dmitrymomot/commhub/pkg/validator"
)

// CoordinationStatus is the state of an elder coordination thread.
type CoordinationStatus string

const (
	CoordinationInitiated       CoordinationStatus = "initiated"
	CoordinationInProgress      CoordinationStatus = "in_progress"
	CoordinationPendingDecision CoordinationStatus = "pending_decision"
	CoordinationCompleted       CoordinationStatus = "completed"
	CoordinationCancelled       CoordinationStatus = "cancelled"
)

// ParticipationStatus is an elder's involvement in a coordination thread.
type ParticipationStatus string

const (
	ParticipationInvited   ParticipationStatus = "invited"
	ParticipationActive    ParticipationStatus = "active"
	ParticipationInactive  ParticipationStatus = "inactive"
	ParticipationCompleted ParticipationStatus = "completed"
)

// ElderParticipant is an elder invited to a coordination thread.
type ElderParticipant struct {
	UserID   string              `json:"user_id"`
	Name     string              `json:"name,omitempty"`
	Role     string              `json:"role,omitempty"`
	Status   ParticipationStatus `json:"status"`
	JoinedAt *time.Time          `json:"joined_at,omitempty"`
}

// ElderCoordination is a thread in which elders decide on a matter together.
type ElderCoordination struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	InitiatedBy       string             `json:"initiated_by"`
	Elders            []ElderParticipant `json:"elders"`
	Status            CoordinationStatus `json:"status"`
	Priority          messaging.Priority `json:"priority"`
	RelatedEntityID   string             `json:"related_entity_id,omitempty"`
	RelatedEntityType string             `json:"related_entity_type,omitempty"`
	RegionID          string             `json:"region_id,omitempty"`
	MessageIDs        []string           `json:"message_ids"`
	Decisions         []ElderDecision    `json:"decisions"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// ElderDecision is an outcome recorded by one elder of a coordination thread.
type ElderDecision struct {
	ID                  string    `json:"id"`
	CoordinationID      string    `json:"coordination_id"`
	Decision            string    `json:"decision"`
	Reasoning           string    `json:"reasoning"`
	DecidedBy           string    `json:"decided_by"`
	DecidedAt           time.Time `json:"decided_at"`
	ImplementationNotes string    `json:"implementation_notes,omitempty"`
}

// DecisionRequest records a decision on a coordination thread.
type DecisionRequest struct {
	Decision            string `json:"decision"`
	Reasoning           string `json:"reasoning"`
	DecidedBy           string `json:"decided_by"`
	ImplementationNotes string `json:"implementation_notes,omitempty"`
}

// CoordinationRequest starts an elder coordination thread.
type CoordinationRequest struct {
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	InitiatedBy       string             `json:"initiated_by"`
	ElderIDs          []string           `json:"elder_ids"`
	Priority          messaging.Priority `json:"priority,omitempty"`
	RelatedEntityID   string             `json:"related_entity_id,omitempty"`
	RelatedEntityType string             `json:"related_entity_type,omitempty"`
	RegionID          string             `json:"region_id,omitempty"`
}

// StartElderCoordination opens a coordination thread and notifies the invited
// elders. Requires the elder_coordination flag for the initiator and region.
func (h *Hub) StartElderCoordination(ctx context.Context, req CoordinationRequest) (ElderCoordination, error) {
	ctx = feature.WithRegion(feature.WithUser(ctx, req.InitiatedBy), req.RegionID)
	if err := h.requireFeature(ctx, FlagElderCoordination); err != nil {
		return ElderCoordination{}, err
	}

	if len(req.ElderIDs) == 0 {
		return ElderCoordination{}, ErrNoRecipients
	}
	if req.Priority == "" {
		req.Priority = messaging.PriorityHigh
	}
	if err := validate(
		validator.Required("title", req.Title),
		validator.Required("description", req.Description),
		validator.Required("initiated_by", req.InitiatedBy),
		validator.Known("priority", req.Priority),
	); err != nil {
		return ElderCoordination{}, err
	}

	initiator, err := h.contact(ctx, req.InitiatedBy)
	if err != nil {
		return ElderCoordination{}, fmt.Errorf("lookup initiator %s: %w", req.InitiatedBy, err)
	}

	var contacts []messaging.Contact
	for _, id := range req.ElderIDs {
		c, err := h.contact(ctx, id)
		if err != nil {
			return ElderCoordination{}, fmt.Errorf("lookup elder %s: %w", id, err)
		}
		contacts = append(contacts, c)
	}
	contacts = dedupeContacts(contacts)

	now := h.now()
	c := ElderCoordination{
		ID:                uuid.NewString(),
		Title:             req.Title,
		Description:       req.Description,
		InitiatedBy:       req.InitiatedBy,
		Status:            CoordinationInitiated,
		Priority:          req.Priority,
		RelatedEntityID:   req.RelatedEntityID,
		RelatedEntityType: req.RelatedEntityType,
		RegionID:          req.RegionID,
		MessageIDs:        []string{},
		Decisions:         []ElderDecision{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, e := range contacts {
		c.Elders = append(c.Elders, ElderParticipant{
			UserID: e.UserID,
			Name:   e.Name,
			Role:   e.Role,
			Status: ParticipationInvited,
		})
	}

	recipients := recipientsFromContacts(contacts)
	for i := range recipients {
		recipients[i].ResponseRequired = true
	}

	res, err := h.Send(ctx, messaging.Message{
		Type:              messaging.TypeElderCoordination,
		Subject:           req.Title,
		Content:           req.Description,
		SenderID:          initiator.UserID,
		SenderName:        initiator.Name,
		SenderRole:        initiator.Role,
		Recipients:        recipients,
		Channels:          []messaging.Channel{messaging.ChannelEmail, messaging.ChannelInApp},
		Priority:          req.Priority,
		Category:          messaging.CategoryAdministrative,
		RegionID:          req.RegionID,
		RelatedEntityID:   c.ID,
		RelatedEntityType: "elder_coordination",
	})
	if err != nil {
		return ElderCoordination{}, err
	}

	c.MessageIDs = append(c.MessageIDs, res.MessageID)
	if res.Status != messaging.StatusFailed {
		c.Status = CoordinationInProgress
	}
	if err := h.store.CreateCoordination(ctx, c); err != nil {
		return ElderCoordination{}, fmt.Errorf("store coordination: %w", err)
	}

	h.logger.LogAttrs(ctx, slog.LevelInfo, "elder coordination started",
		slog.String("coordination_id", c.ID),
		logger.MessageID(res.MessageID),
		logger.UserID(req.InitiatedBy),
		slog.Int("elders", len(c.Elders)),
	)
	return c, nil
}

// Coordination returns a stored coordination thread.
func (h *Hub) Coordination(ctx context.Context, id string) (ElderCoordination, error) {
	return h.store.Coordination(ctx, id)
}

// AddElderDecision records an elder's decision. The elder's participation is
// completed; the thread waits in pending_decision until every invited elder
// has decided and is then completed. The other participants are notified in-app.
func (h *Hub) AddElderDecision(ctx context.Context, coordinationID string, req DecisionRequest) (ElderCoordination, error) {
	if err := validate(
		validator.Required("decision", req.Decision),
		validator.Required("reasoning", req.Reasoning),
		validator.Required("decided_by", req.DecidedBy),
		validator.MaxLen("implementation_notes", req.ImplementationNotes, h.cfg.MaxMessageLength),
	); err != nil {
		return ElderCoordination{}, err
	}

	current, err := h.store.Coordination(ctx, coordinationID)
	if err != nil {
		return ElderCoordination{}, err
	}
	ctx = feature.WithRegion(feature.WithUser(ctx, req.DecidedBy), current.RegionID)
	if err := h.requireFeature(ctx, FlagElderCoordination); err != nil {
		return ElderCoordination{}, err
	}

	now := h.now()
	decision := ElderDecision{
		ID:                  uuid.NewString(),
		CoordinationID:      coordinationID,
		Decision:            req.Decision,
		Reasoning:           req.Reasoning,
		DecidedBy:           req.DecidedBy,
		DecidedAt:           now,
		ImplementationNotes: req.ImplementationNotes,
	}
	c, err := h.store.UpdateCoordination(ctx, coordinationID, func(c *ElderCoordination) error {
		return c.decide(decision)
	})
	if err != nil {
		return ElderCoordination{}, err
	}

	h.logger.LogAttrs(ctx, slog.LevelInfo, "elder decision recorded",
		slog.String("coordination_id", c.ID),
		logger.UserID(req.DecidedBy),
		slog.String("status", string(c.Status)),
	)

	msgID, err := h.announceDecision(ctx, c, decision)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "decision announcement failed",
			slog.String("coordination_id", c.ID),
			logger.Error(err),
		)
		return c, nil
	}
	if msgID == "" {
		return c, nil
	}
	return h.store.UpdateCoordination(ctx, c.ID, func(c *ElderCoordination) error {
		c.MessageIDs = append(c.MessageIDs, msgID)
		return nil
	})
}

// decide appends d and advances the thread status.
func (c *ElderCoordination) decide(d ElderDecision) error {
	switch c.Status {
	case CoordinationCompleted, CoordinationCancelled:
		return fmt.Errorf("%w: coordination %s is %s", ErrConflict, c.ID, c.Status)
	}
	idx := slices.IndexFunc(c.Elders, func(e ElderParticipant) bool { return e.UserID == d.DecidedBy })
	if idx < 0 {
		return fmt.Errorf("%w: %s is not an elder of coordination %s", ErrRecipientNotFound, d.DecidedBy, c.ID)
	}

	elder := &c.Elders[idx]
	if elder.JoinedAt == nil {
		at := d.DecidedAt
		elder.JoinedAt = &at
	}
	elder.Status = ParticipationCompleted
	c.Decisions = append(c.Decisions, d)
	c.UpdatedAt = d.DecidedAt

	c.Status = CoordinationCompleted
	for _, e := range c.Elders {
		if e.Status != ParticipationCompleted {
			c.Status = CoordinationPendingDecision
			break
		}
	}
	if c.Status == CoordinationCompleted {
		at := d.DecidedAt
		c.CompletedAt = &at
	}
	return nil
}

// announceDecision tells the initiator and the other elders about d.
// It returns an empty id when there is nobody to tell.
func (h *Hub) announceDecision(ctx context.Context, c ElderCoordination, d ElderDecision) (string, error) {
	var recipients []messaging.Recipient
	add := func(userID, name, role string) {
		if userID == d.DecidedBy || slices.ContainsFunc(recipients, func(r messaging.Recipient) bool { return r.UserID == userID }) {
			return
		}
		recipients = append(recipients, messaging.Recipient{UserID: userID, Name: name, Role: role})
	}
	add(c.InitiatedBy, "", "")
	var decider ElderParticipant
	for _, e := range c.Elders {
		if e.UserID == d.DecidedBy {
			decider = e
		}
		add(e.UserID, e.Name, e.Role)
	}
	if len(recipients) == 0 {
		return "", nil
	}

	content := fmt.Sprintf("%s: %s\n\n%s", displayName(decider), d.Decision, d.Reasoning)
	if d.ImplementationNotes != "" {
		content += "\n\n" + d.ImplementationNotes
	}
	res, err := h.Send(ctx, messaging.Message{
		Type:              messaging.TypeElderCoordination,
		Subject:           "Decision: " + c.Title,
		Content:           truncateRunes(content, h.cfg.MaxMessageLength),
		SenderID:          d.DecidedBy,
		SenderName:        decider.Name,
		SenderRole:        decider.Role,
		Recipients:        recipients,
		Channels:          []messaging.Channel{messaging.ChannelInApp},
		Priority:          c.Priority,
		Category:          messaging.CategoryAdministrative,
		RegionID:          c.RegionID,
		RelatedEntityID:   c.ID,
		RelatedEntityType: "elder_coordination",
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

func displayName(e ElderParticipant) string {
	if e.Name != "" {
		return e.Name
	}
	return e.UserID
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

package messaging

import (
	"slices"
	"time"
)

// Channel is a discrete communication medium.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push_notification"
	ChannelPhone Channel = "phone_call"
)

// Channels lists every known channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelInApp, ChannelPush, ChannelPhone}

func (c Channel) Valid() bool { return slices.Contains(Channels, c) }

// Priority is the urgency of a message.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// Priorities lists priorities from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent, PriorityEmergency}

func (p Priority) Valid() bool { return slices.Contains(Priorities, p) }

// Raise returns the next more urgent priority. Emergency stays emergency.
func (p Priority) Raise() Priority {
	i := slices.Index(Priorities, p)
	if i < 0 || i == len(Priorities)-1 {
		return p
	}
	return Priorities[i+1]
}

// MessageType classifies what a message is about.
type MessageType string

const (
	TypeNotification        MessageType = "notification"
	TypeAnnouncement        MessageType = "announcement"
	TypeAssignmentUpdate    MessageType = "assignment_update"
	TypeEmergencyAlert      MessageType = "emergency_alert"
	TypeReminder            MessageType = "reminder"
	TypeInvitation          MessageType = "invitation"
	TypeConfirmationRequest MessageType = "confirmation_request"
	TypeGroupMessage        MessageType = "group_message"
	TypeElderCoordination   MessageType = "elder_coordination"
)

var messageTypes = []MessageType{
	TypeNotification, TypeAnnouncement, TypeAssignmentUpdate, TypeEmergencyAlert, TypeReminder,
	TypeInvitation, TypeConfirmationRequest, TypeGroupMessage, TypeElderCoordination,
}

func (t MessageType) Valid() bool { return slices.Contains(messageTypes, t) }

// Category groups messages by subject area. Preferences can be set per category.
type Category string

const (
	CategoryAssignment     Category = "assignment"
	CategoryVolunteer      Category = "volunteer"
	CategoryProject        Category = "project"
	CategorySafety         Category = "safety"
	CategoryAdministrative Category = "administrative"
	CategorySpiritual      Category = "spiritual"
	CategoryEmergency      Category = "emergency"
	CategoryGeneral        Category = "general"
)

var categories = []Category{
	CategoryAssignment, CategoryVolunteer, CategoryProject, CategorySafety,
	CategoryAdministrative, CategorySpiritual, CategoryEmergency, CategoryGeneral,
}

func (c Category) Valid() bool { return slices.Contains(categories, c) }

// DeliveryStatus is the per-recipient (or per-channel) delivery outcome.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryBounced   DeliveryStatus = "bounced"
	DeliveryBlocked   DeliveryStatus = "blocked"
)

// Final reports whether no further attempts will change the status.
func (s DeliveryStatus) Final() bool { return s != DeliveryPending && s != "" }

// ResponseType classifies a recipient reply.
type ResponseType string

const (
	ResponseConfirmation   ResponseType = "confirmation"
	ResponseDecline        ResponseType = "decline"
	ResponseQuestion       ResponseType = "question"
	ResponseComment        ResponseType = "comment"
	ResponseAcknowledgment ResponseType = "acknowledgment"
)

var responseTypes = []ResponseType{
	ResponseConfirmation, ResponseDecline, ResponseQuestion, ResponseComment, ResponseAcknowledgment,
}

func (r ResponseType) Valid() bool { return slices.Contains(responseTypes, r) }

// Recipient is one addressee of a message. Recipients are owned by their message.
type Recipient struct {
	ID                string         `json:"id" yaml:"id"`
	UserID            string         `json:"user_id" yaml:"user_id"`
	Name              string         `json:"name,omitempty" yaml:"name,omitempty"`
	Role              string         `json:"role,omitempty" yaml:"role,omitempty"`
	PreferredChannels []Channel      `json:"preferred_channels,omitempty" yaml:"preferred_channels,omitempty"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status" yaml:"delivery_status"`
	ResponseRequired  bool           `json:"response_required" yaml:"response_required"`
	ResponseReceived  bool           `json:"response_received" yaml:"response_received"`
	ReadAt            *time.Time     `json:"read_at,omitempty" yaml:"read_at,omitempty"`
}

// DeliveryRecord tracks a single (recipient, channel) delivery attempt chain.
type DeliveryRecord struct {
	RecipientID string         `json:"recipient_id"`
	Channel     Channel        `json:"channel"`
	Status      DeliveryStatus `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Attempts    int            `json:"attempts"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ReadReceipt records that a recipient opened a message.
type ReadReceipt struct {
	UserID  string    `json:"user_id"`
	Channel Channel   `json:"channel"`
	ReadAt  time.Time `json:"read_at"`
}

// Response is a recipient's reply to a message.
type Response struct {
	UserID      string       `json:"user_id"`
	UserName    string       `json:"user_name,omitempty"`
	Content     string       `json:"content,omitempty"`
	Type        ResponseType `json:"type"`
	Channel     Channel      `json:"channel"`
	RespondedAt time.Time    `json:"responded_at"`
}

// Message is an abstract communication addressed to one or more recipients.
type Message struct {
	ID                string           `json:"id"`
	Type              MessageType      `json:"type"`
	Subject           string           `json:"subject"`
	Content           string           `json:"content"`
	SenderID          string           `json:"sender_id"`
	SenderName        string           `json:"sender_name"`
	SenderRole        string           `json:"sender_role"`
	Recipients        []Recipient      `json:"recipients"`
	Channels          []Channel        `json:"channels"`
	Priority          Priority         `json:"priority"`
	Category          Category         `json:"category"`
	TemplateID        string           `json:"template_id,omitempty"`
	ScheduledFor      *time.Time       `json:"scheduled_for,omitempty"`
	Status            Status           `json:"status"`
	Deliveries        []DeliveryRecord `json:"deliveries,omitempty"`
	ReadReceipts      []ReadReceipt    `json:"read_receipts,omitempty"`
	Responses         []Response       `json:"responses,omitempty"`
	RegionID          string           `json:"region_id,omitempty"`
	RelatedEntityID   string           `json:"related_entity_id,omitempty"`
	RelatedEntityType string           `json:"related_entity_type,omitempty"`
	ApprovalLevel     ApprovalLevel    `json:"approval_level,omitempty"`
	ApprovedBy        string           `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	SentAt            *time.Time       `json:"sent_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AwaitingApproval reports whether m is a draft held until someone approves it.
func (m *Message) AwaitingApproval() bool {
	return m.Status == StatusDraft && m.ApprovalLevel.Required() && m.ApprovedAt == nil
}

// Recipient returns the recipient addressed to userID.
func (m *Message) Recipient(userID string) (*Recipient, bool) {
	for i := range m.Recipients {
		if m.Recipients[i].UserID == userID {
			return &m.Recipients[i], true
		}
	}
	return nil, false
}

// Contact is a directory entry for a user who can receive messages.
type Contact struct {
	UserID   string `json:"user_id" yaml:"user_id"`
	Name     string `json:"name" yaml:"name"`
	Role     string `json:"role,omitempty" yaml:"role,omitempty"`
	Email    string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
	RegionID string `json:"region_id,omitempty" yaml:"region_id,omitempty"`
}

// GroupType classifies a communication group.
type GroupType string

const (
	GroupProjectTeam       GroupType = "project_team"
	GroupTradeTeam         GroupType = "trade_team"
	GroupVolunteer         GroupType = "volunteer_group"
	GroupOversight         GroupType = "oversight_group"
	GroupEmergencyResponse GroupType = "emergency_response"
	GroupAdministrative    GroupType = "administrative"
)

// GroupMember is a user inside a communication group.
type GroupMember struct {
	UserID     string `json:"user_id" yaml:"user_id"`
	UserName   string `json:"user_name" yaml:"user_name"`
	Role       string `json:"role,omitempty" yaml:"role,omitempty"`
	CanReceive bool   `json:"can_receive" yaml:"can_receive"`
	CanSend    bool   `json:"can_send" yaml:"can_send"`
	IsActive   bool   `json:"is_active" yaml:"is_active"`
}

// Group is a named set of users addressed together.
type Group struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Type     GroupType     `json:"type" yaml:"type"`
	Members  []GroupMember `json:"members" yaml:"members"`
	RegionID string        `json:"region_id,omitempty" yaml:"region_id,omitempty"`
	IsActive bool          `json:"is_active" yaml:"is_active"`
}

// Receivers returns the active members allowed to receive messages.
func (g Group) Receivers() []GroupMember {
	out := make([]GroupMember, 0, len(g.Members))
	for _, m := range g.Members {
		if m.IsActive && m.CanReceive {
			out = append(out, m)
		}
	}
	return out
}

package commhub

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dmitrymomot/commhub/pkg/messaging"
)

// ChannelStats counts deliveries on one channel.
type ChannelStats struct {
	Sent      int `json:"sent"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Read      int `json:"read"`
}

// FailureReason groups failed deliveries by cause.
type FailureReason struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// DeliveryReport summarizes how a message reached its recipients.
type DeliveryReport struct {
	MessageID        string                             `json:"message_id"`
	Status           messaging.Status                   `json:"status"`
	TotalRecipients  int                                `json:"total_recipients"`
	DeliveredCount   int                                `json:"delivered_count"`
	FailedCount      int                                `json:"failed_count"`
	ReadCount        int                                `json:"read_count"`
	ResponseCount    int                                `json:"response_count"`
	DeliveryRate     float64                            `json:"delivery_rate"`
	ReadRate         float64                            `json:"read_rate"`
	ResponseRate     float64                            `json:"response_rate"`
	ChannelBreakdown map[messaging.Channel]ChannelStats `json:"channel_breakdown"`
	FailureReasons   []FailureReason                    `json:"failure_reasons"`
	GeneratedAt      time.Time                          `json:"generated_at"`
}

// DeliveryReport builds the delivery report of a stored message.
func (h *Hub) DeliveryReport(ctx context.Context, messageID string) (DeliveryReport, error) {
	msg, err := h.store.Message(ctx, messageID)
	if err != nil {
		return DeliveryReport{}, err
	}
	return BuildReport(msg, h.now()), nil
}

// BuildReport computes a delivery report from message state. Rates are
// fractions of the recipient count.
func BuildReport(msg messaging.Message, now time.Time) DeliveryReport {
	r := DeliveryReport{
		MessageID:        msg.ID,
		Status:           msg.Status,
		TotalRecipients:  len(msg.Recipients),
		ChannelBreakdown: make(map[messaging.Channel]ChannelStats),
		FailureReasons:   []FailureReason{},
		GeneratedAt:      now,
	}

	for _, rcpt := range msg.Recipients {
		switch rcpt.DeliveryStatus {
		case messaging.DeliveryDelivered:
			r.DeliveredCount++
		case messaging.DeliveryFailed, messaging.DeliveryBounced, messaging.DeliveryBlocked:
			r.FailedCount++
		case messaging.DeliveryPending:
		}
		if rcpt.ReadAt != nil {
			r.ReadCount++
		}
		if rcpt.ResponseReceived {
			r.ResponseCount++
		}
	}

	reasons := make(map[string]int)
	for _, d := range msg.Deliveries {
		stats := r.ChannelBreakdown[d.Channel]
		stats.Sent++
		switch {
		case d.Status == messaging.DeliveryDelivered:
			stats.Delivered++
		case d.Status.Final():
			stats.Failed++
			reason := d.Reason
			if reason == "" {
				reason = string(d.Status)
			}
			reasons[reason]++
		}
		r.ChannelBreakdown[d.Channel] = stats
	}
	for _, rr := range msg.ReadReceipts {
		stats := r.ChannelBreakdown[rr.Channel]
		stats.Read++
		r.ChannelBreakdown[rr.Channel] = stats
	}

	for reason, count := range reasons {
		r.FailureReasons = append(r.FailureReasons, FailureReason{Reason: reason, Count: count})
	}
	slices.SortFunc(r.FailureReasons, func(a, b FailureReason) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})

	if r.TotalRecipients > 0 {
		total := float64(r.TotalRecipients)
		r.DeliveryRate = float64(r.DeliveredCount) / total
		r.ReadRate = float64(r.ReadCount) / total
		r.ResponseRate = float64(r.ResponseCount) / total
	}
	return r
}

package messaging

import (
	"bytes"
	"encoding/json"
	"html/template"
	"strings"
	"unicode/utf8"
)

const (
	smsMaxLength = 160
	smsEllipsis  = "..."
)

// DefaultBrand is the footer signature of HTML emails.
const DefaultBrand = "Communication Hub"

var emailLayout = template.Must(template.New("email").Parse(`<html>
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2 style="color: #2c5aa0;">{{.Subject}}</h2>
    <div style="margin: 20px 0;">{{.Body}}</div>
    <hr style="border: 1px solid #eee; margin: 20px 0;">
    <p style="font-size: 12px; color: #666;">
      Sent by {{.SenderName}} ({{.SenderRole}})<br>
      {{.Brand}}
    </p>
  </body>
</html>`))

// InAppSender identifies who sent an in-app notification.
type InAppSender struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// InAppPayload is the structured content delivered to the in-app channel.
type InAppPayload struct {
	Title    string      `json:"title"`
	Body     string      `json:"body"`
	Priority Priority    `json:"priority"`
	Category Category    `json:"category"`
	Sender   InAppSender `json:"sender"`
	Actions  []string    `json:"actions"`
}

// Formatter renders channel-specific content. The zero value is not usable; use NewFormatter.
type Formatter struct {
	brand string
}

// NewFormatter returns a formatter signing emails with brand.
func NewFormatter(brand string) *Formatter {
	if brand == "" {
		brand = DefaultBrand
	}
	return &Formatter{brand: brand}
}

// Format renders msg for delivery over ch.
func (f *Formatter) Format(msg *Message, ch Channel) string {
	switch ch {
	case ChannelSMS:
		return FormatSMS(msg.Subject, msg.Content)
	case ChannelEmail:
		return f.FormatEmail(msg)
	case ChannelInApp:
		return FormatInApp(msg)
	case ChannelPush, ChannelPhone:
		return plainText(msg.Subject, msg.Content)
	default:
		return plainText(msg.Subject, msg.Content)
	}
}

// FormatSMS joins subject and content and truncates the result to 160 characters.
func FormatSMS(subject, content string) string {
	text := plainText(subject, content)
	if utf8.RuneCountInString(text) <= smsMaxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:smsMaxLength-len(smsEllipsis)]) + smsEllipsis
}

// FormatEmail wraps the message in a minimal HTML document.
func (f *Formatter) FormatEmail(msg *Message) string {
	body := strings.ReplaceAll(template.HTMLEscapeString(msg.Content), "\n", "<br>")
	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, struct {
		Subject    string
		Body       template.HTML
		SenderName string
		SenderRole string
		Brand      string
	}{
		Subject:    msg.Subject,
		Body:       template.HTML(body),
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		Brand:      f.brand,
	})
	if err != nil {
		return plainText(msg.Subject, msg.Content)
	}
	return buf.String()
}

// NewInAppPayload builds the structured in-app notification for msg.
func NewInAppPayload(msg *Message) InAppPayload {
	actions := []string{"Mark as Read"}
	if msg.Type == TypeConfirmationRequest {
		actions = []string{"Confirm", "Decline"}
	}
	return InAppPayload{
		Title:    msg.Subject,
		Body:     msg.Content,
		Priority: msg.Priority,
		Category: msg.Category,
		Sender:   InAppSender{Name: msg.SenderName, Role: msg.SenderRole},
		Actions:  actions,
	}
}

// FormatInApp encodes the in-app payload as JSON.
func FormatInApp(msg *Message) string {
	b, err := json.Marshal(NewInAppPayload(msg))
	if err != nil {
		return plainText(msg.Subject, msg.Content)
	}
	return string(b)
}

func plainText(subject, content string) string {
	return subject + "\n\n" + content
}

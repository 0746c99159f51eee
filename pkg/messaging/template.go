package messaging

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// VariableType controls how a template variable is formatted.
type VariableType string

const (
	VarText    VariableType = "text"
	VarNumber  VariableType = "number"
	VarDate    VariableType = "date"
	VarBoolean VariableType = "boolean"
	VarSelect  VariableType = "select"
	VarUser    VariableType = "user"
	VarRole    VariableType = "role"
	VarProject VariableType = "project"
)

// ApprovalLevel is who must approve messages built from a template.
type ApprovalLevel string

const (
	ApprovalNone     ApprovalLevel = "none"
	ApprovalOverseer ApprovalLevel = "overseer"
	ApprovalElder    ApprovalLevel = "elder"
	ApprovalBranch   ApprovalLevel = "branch"
)

var approvalLevels = []ApprovalLevel{ApprovalNone, ApprovalOverseer, ApprovalElder, ApprovalBranch}

func (l ApprovalLevel) Valid() bool { return slices.Contains(approvalLevels, l) }

// Required reports whether messages at this level must be approved before release.
func (l ApprovalLevel) Required() bool { return l != "" && l != ApprovalNone }

// SatisfiedBy reports whether a contact with role may approve at this level.
// Roles rank overseer < elder < branch; any other role ranks lowest.
func (l ApprovalLevel) SatisfiedBy(role string) bool {
	if !l.Required() {
		return true
	}
	return slices.Index(approvalLevels, ApprovalLevel(role)) >= slices.Index(approvalLevels, l)
}

// Variable is a typed placeholder declared by a template.
type Variable struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Type        VariableType `json:"type" yaml:"type"`
	Required    bool         `json:"required" yaml:"required"`
	Default     string       `json:"default,omitempty" yaml:"default,omitempty"`
	Options     []string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Template is a reusable message with {{name}} placeholders.
type Template struct {
	ID               string        `json:"id" yaml:"id"`
	Name             string        `json:"name" yaml:"name"`
	Description      string        `json:"description,omitempty" yaml:"description,omitempty"`
	Category         Category      `json:"category" yaml:"category"`
	Type             MessageType   `json:"type" yaml:"type"`
	Subject          string        `json:"subject" yaml:"subject"`
	Content          string        `json:"content" yaml:"content"`
	Variables        []Variable    `json:"variables,omitempty" yaml:"variables,omitempty"`
	DefaultChannels  []Channel     `json:"default_channels" yaml:"default_channels"`
	DefaultPriority  Priority      `json:"default_priority" yaml:"default_priority"`
	RequiresApproval bool          `json:"requires_approval" yaml:"requires_approval"`
	ApprovalLevel    ApprovalLevel `json:"approval_level,omitempty" yaml:"approval_level,omitempty"`
	IsActive         bool          `json:"is_active" yaml:"is_active"`
}

var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_.\-]+)\}\}`)

// Placeholders returns the distinct placeholder names used in subject and content, in order of appearance.
func (t Template) Placeholders() []string {
	var names []string
	for _, text := range []string{t.Subject, t.Content} {
		for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
			if !slices.Contains(names, m[1]) {
				names = append(names, m[1])
			}
		}
	}
	return names
}

// UndeclaredPlaceholders returns placeholders with no matching variable declaration.
// Rendering leaves them verbatim; this is meant for authoring-time checks.
func (t Template) UndeclaredPlaceholders() []string {
	var out []string
	for _, name := range t.Placeholders() {
		if !slices.ContainsFunc(t.Variables, func(v Variable) bool { return v.Name == name }) {
			out = append(out, name)
		}
	}
	return out
}

// Rendered is the result of substituting variables into a template.
type Rendered struct {
	Subject string
	Content string
}

// Renderer substitutes template variables with locale-aware formatting.
// It holds no mutable state and is safe for concurrent use.
type Renderer struct {
	lang       language.Tag
	dateLayout string
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLanguage sets the locale used for number grouping.
func WithLanguage(tag language.Tag) RendererOption {
	return func(r *Renderer) {
		r.lang = tag
	}
}

// WithDateLayout sets the time layout used for date variables.
func WithDateLayout(layout string) RendererOption {
	return func(r *Renderer) {
		if layout != "" {
			r.dateLayout = layout
		}
	}
}

// NewRenderer creates a renderer. Defaults to English grouping and US short dates.
func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{
		lang:       language.English,
		dateLayout: "1/2/2006",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultRenderer = NewRenderer()

// Render substitutes values into tpl using the default renderer.
func Render(tpl Template, values map[string]any) (Rendered, error) {
	return defaultRenderer.Render(tpl, values)
}

// Render validates required variables and substitutes every declared variable
// into the subject and content. All missing required names are reported at once.
func (r *Renderer) Render(tpl Template, values map[string]any) (Rendered, error) {
	var missing []string
	for _, v := range tpl.Variables {
		if _, ok := values[v.Name]; v.Required && !ok {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, &MissingVariablesError{Names: missing}
	}

	subject, content := tpl.Subject, tpl.Content
	for _, v := range tpl.Variables {
		formatted := r.Format(r.resolve(v, values), v.Type)
		token := "{{" + v.Name + "}}"
		subject = strings.ReplaceAll(subject, token, formatted)
		content = strings.ReplaceAll(content, token, formatted)
	}
	return Rendered{Subject: subject, Content: content}, nil
}

func (r *Renderer) resolve(v Variable, values map[string]any) any {
	if val, ok := values[v.Name]; ok && val != nil {
		return val
	}
	return v.Default
}

// Format renders a single value for the given variable type.
func (r *Renderer) Format(value any, typ VariableType) string {
	switch typ {
	case VarDate:
		switch t := value.(type) {
		case time.Time:
			return t.Format(r.dateLayout)
		case *time.Time:
			if t != nil {
				return t.Format(r.dateLayout)
			}
			return ""
		}
	case VarNumber:
		if s, ok := r.formatNumber(value); ok {
			return s
		}
	case VarBoolean:
		if truthy(value) {
			return "Yes"
		}
		return "No"
	case VarText, VarSelect, VarUser, VarRole, VarProject:
	}
	return plain(value)
}

// formatNumber groups digits for the renderer's language. Whole floats,
// which is what JSON-decoded integers arrive as, print without a fraction.
func (r *Renderer) formatNumber(value any) (string, bool) {
	p := message.NewPrinter(r.lang)
	switch n := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return p.Sprintf("%d", n), true
	case float32:
		return formatFloat(p, float64(n)), true
	case float64:
		return formatFloat(p, n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return p.Sprintf("%d", i), true
		}
		if f, err := n.Float64(); err == nil {
			return formatFloat(p, f), true
		}
	}
	return "", false
}

func formatFloat(p *message.Printer, f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return p.Sprintf("%d", int64(f))
	}
	return p.Sprintf("%v", number.Decimal(f, number.MaxFractionDigits(3)))
}

func plain(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

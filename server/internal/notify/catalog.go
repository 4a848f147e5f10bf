package notify

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"sync"
	"text/template"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
)

// Template describes one kind of generated notification. Title and Message
// are text/template sources; {{randInt lo hi}} yields an int in [lo, hi).
type Template struct {
	Type     string
	Title    string
	Message  string
	Severity string
}

// Draft is a rendered template, not yet stamped with an ID or timestamp.
type Draft struct {
	Type     string
	Title    string
	Message  string
	Severity string
}

// Catalog yields notification drafts for the Generator.
type Catalog interface {
	Pick() (Draft, error)
}

// DefaultTemplates returns the built-in catalog.
func DefaultTemplates() []Template {
	return []Template{
		{
			Type:     types.TypeUserActivity,
			Title:    "New User Connected",
			Message:  "User user{{randInt 0 1000}} has connected to the network",
			Severity: types.SeverityInfo,
		},
		{
			Type:     types.TypePayment,
			Title:    "Payment Received",
			Message:  "Payment of Rp {{randInt 50000 550000}} received",
			Severity: types.SeveritySuccess,
		},
		{
			Type:     types.TypeSystem,
			Title:    "System Alert",
			Message:  "Server CPU usage is above normal threshold",
			Severity: types.SeverityWarning,
		},
		{
			Type:     types.TypeSecurity,
			Title:    "Failed Login Attempt",
			Message:  "Multiple failed login attempts detected",
			Severity: types.SeverityError,
		},
	}
}

// TemplatesFromConfig converts configured catalog entries. An empty list
// yields DefaultTemplates. A missing severity defaults to info.
func TemplatesFromConfig(entries []config.TemplateConfig) []Template {
	if len(entries) == 0 {
		return DefaultTemplates()
	}
	out := make([]Template, 0, len(entries))
	for _, e := range entries {
		sev := e.Severity
		if sev == "" {
			sev = types.SeverityInfo
		}
		out = append(out, Template{Type: e.Type, Title: e.Title, Message: e.Message, Severity: sev})
	}
	return out
}

type compiled struct {
	typ      string
	severity string
	title    *template.Template
	message  *template.Template
}

// RandomCatalog picks a template uniformly at random on every call. It is
// safe for concurrent use and its templates can be replaced at runtime.
type RandomCatalog struct {
	mu      sync.Mutex
	rng     *rand.Rand
	entries []compiled
}

// NewRandomCatalog compiles templates. A zero seed draws a random one.
func NewRandomCatalog(templates []Template, seed uint64) (*RandomCatalog, error) {
	if seed == 0 {
		seed = rand.Uint64()
	}
	c := &RandomCatalog{rng: rand.New(rand.NewPCG(seed, ^seed))}
	if err := c.Replace(templates); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the template set. On error the previous set is kept.
func (c *RandomCatalog) Replace(templates []Template) error {
	if len(templates) == 0 {
		return fmt.Errorf("notify: catalog is empty")
	}
	funcs := template.FuncMap{"randInt": c.randInt}
	entries := make([]compiled, 0, len(templates))
	for i, t := range templates {
		if t.Type == "" || t.Title == "" {
			return fmt.Errorf("notify: template %d: type and title are required", i)
		}
		if !types.ValidSeverity(t.Severity) {
			return fmt.Errorf("notify: template %q: unknown severity %q", t.Type, t.Severity)
		}
		title, err := template.New(t.Type + ".title").Funcs(funcs).Parse(t.Title)
		if err != nil {
			return fmt.Errorf("notify: template %q title: %w", t.Type, err)
		}
		msg, err := template.New(t.Type + ".message").Funcs(funcs).Parse(t.Message)
		if err != nil {
			return fmt.Errorf("notify: template %q message: %w", t.Type, err)
		}
		entries = append(entries, compiled{typ: t.Type, severity: t.Severity, title: title, message: msg})
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Len returns the number of templates.
func (c *RandomCatalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Pick implements Catalog.
func (c *RandomCatalog) Pick() (Draft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[c.rng.IntN(len(c.entries))]

	var title, msg bytes.Buffer
	if err := e.title.Execute(&title, nil); err != nil {
		return Draft{}, fmt.Errorf("notify: render %q title: %w", e.typ, err)
	}
	if err := e.message.Execute(&msg, nil); err != nil {
		return Draft{}, fmt.Errorf("notify: render %q message: %w", e.typ, err)
	}
	return Draft{Type: e.typ, Title: title.String(), Message: msg.String(), Severity: e.severity}, nil
}

// randInt is only called from Pick, which holds c.mu.
func (c *RandomCatalog) randInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + c.rng.IntN(hi-lo)
}

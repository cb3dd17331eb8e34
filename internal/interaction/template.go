package interaction

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// templateFuncs provides utility functions for templates.
var templateFuncs = sprig.TxtFuncMap()

// Messages are the templates used to describe interaction outcomes.
// Templates access MessageData fields via {{ .FieldName }}.
type Messages struct {
	Attack   string `json:"attack"`
	Kill     string `json:"kill"`
	Greeting string `json:"greeting"`
	Pickup   string `json:"pickup"`
}

// DefaultMessages are used for any template left empty.
var DefaultMessages = Messages{
	Attack:   "{{ .Actor }} {{ .Verb }} {{ .Target }} for {{ .Damage }} damage ({{ .HPLeft }} hp left).",
	Kill:     "{{ .Actor }} {{ .Verb }} {{ .Target }} for {{ .Damage }} damage and defeats it! +{{ .Experience }} experience.",
	Greeting: "Hello, {{ .Actor }}! I am {{ .Target | title }}.",
	Pickup:   "You picked up {{ .Item | default .Target }}.",
}

func (m Messages) withDefaults() Messages {
	if m.Attack == "" {
		m.Attack = DefaultMessages.Attack
	}
	if m.Kill == "" {
		m.Kill = DefaultMessages.Kill
	}
	if m.Greeting == "" {
		m.Greeting = DefaultMessages.Greeting
	}
	if m.Pickup == "" {
		m.Pickup = DefaultMessages.Pickup
	}
	return m
}

// Validate parses every template.
func (m Messages) Validate() error {
	for name, t := range map[string]string{
		"attack":   m.Attack,
		"kill":     m.Kill,
		"greeting": m.Greeting,
		"pickup":   m.Pickup,
	} {
		if t == "" {
			continue
		}
		if _, err := template.New(name).Funcs(templateFuncs).Parse(t); err != nil {
			return fmt.Errorf("message %s: %w", name, err)
		}
	}
	return nil
}

// MessageData is what message templates can reference.
type MessageData struct {
	Actor      string
	Target     string
	Item       string
	Verb       string
	Damage     int
	HPLeft     int
	Experience int
	Level      int

	// HitsLeft is how many more blows like this one the target can take.
	HitsLeft int
}

// ExpandTemplate expands a template string using the provided data.
func ExpandTemplate(tmplStr string, data any) (string, error) {
	// Quick check: if no template markers, return as-is
	if !strings.Contains(tmplStr, "{{") {
		return tmplStr, nil
	}

	tmpl, err := template.New("").Funcs(templateFuncs).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}

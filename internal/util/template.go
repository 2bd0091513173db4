package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var (
	cacheMu sync.RWMutex
	cache   = map[string]*template.Template{}
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// RenderTemplate expands a prompt template with data using text/template.
// Prompts are plain text, so nothing is escaped. Parsed templates are cached
// by their source text.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}

// Check reports template syntax errors without rendering.
func Check(text string) error {
	_, err := parse(text)
	return err
}

// MustParse is like Check but panics, for templates defined at startup.
func MustParse(text string) {
	if err := Check(text); err != nil {
		panic(err)
	}
}

func parse(text string) (*template.Template, error) {
	cacheMu.RLock()
	tmpl, ok := cache[text]
	cacheMu.RUnlock()
	if ok {
		return tmpl, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(funcs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	cacheMu.Lock()
	cache[text] = tmpl
	cacheMu.Unlock()
	return tmpl, nil
}

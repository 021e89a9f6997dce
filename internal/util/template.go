package util

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// bareVar matches shorthand placeholders such as {{response}} or {{ topic }}
// that are not valid text/template actions on their own.
var bareVar = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

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
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(strItems, sep)
	},
}

// RenderTemplate renders prompt text against state using text/template.
// Shorthand placeholders ({{name}}) are rewritten to field lookups
// ({{.name}}); keywords and helper names are left untouched. Missing keys
// render as empty strings.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	text = bareVar.ReplaceAllStringFunc(text, func(m string) string {
		name := bareVar.FindStringSubmatch(m)[1]
		if _, reserved := funcs[name]; reserved || isKeyword(name) {
			return m
		}
		return "{{." + name + "}}"
	})

	tmpl, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, state); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

func isKeyword(name string) bool {
	switch name {
	case "end", "else", "nil", "true", "false", "break", "continue":
		return true
	}
	return false
}

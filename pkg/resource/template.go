package resource

import (
	"regexp"
	"strings"
)

// placeholderPattern matches {name} placeholders in configuration values.
// Names may reference deployment variables ("project", "env", "password")
// or declared secrets ("secrets.MY_KEY").
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// Vars holds the deployment-scoped variables available to configuration
// templates. The factory treats Vars as read-only shared state; rendering
// never mutates it.
type Vars struct {
	// Project is the validated project name of the deployment.
	Project string

	// Environment is the deployment environment (e.g. "staging", "production").
	Environment string

	// Password is the per-deployment generated credential handed to
	// provisioners that create authenticated backends.
	Password string

	// Secrets are the user-declared deployment secrets, addressable in
	// templates as {secrets.NAME}.
	Secrets map[string]string
}

func (v Vars) lookup(name string) (string, bool) {
	switch name {
	case "project":
		return v.Project, true
	case "env", "environment":
		return v.Environment, true
	case "password":
		return v.Password, true
	}
	if key, ok := strings.CutPrefix(name, "secrets."); ok {
		val, found := v.Secrets[key]
		return val, found
	}
	return "", false
}

// Render substitutes all placeholders in value using vars. The field name is
// only used to build a useful TemplateError.
func Render(field, value string, vars Vars) (string, error) {
	var badPlaceholder string

	rendered := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := match[1 : len(match)-1]
		resolved, ok := vars.lookup(name)
		if !ok && badPlaceholder == "" {
			badPlaceholder = name
		}
		return resolved
	})

	if badPlaceholder != "" {
		return "", &TemplateError{Field: field, Placeholder: badPlaceholder}
	}
	return rendered, nil
}

// RenderConfig renders every value of config, returning a new map.
// The input map is never modified.
func RenderConfig(config map[string]string, vars Vars) (map[string]string, error) {
	rendered := make(map[string]string, len(config))
	for field, value := range config {
		out, err := Render(field, value, vars)
		if err != nil {
			return nil, err
		}
		rendered[field] = out
	}
	return rendered, nil
}

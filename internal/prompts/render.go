package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/aymerick/raymond"

	"classroom-backend/internal/shared/telemetry"
)

var registerHelpersOnce sync.Once

// registerHelpers installs the whitelisted logical helpers. Templates branch
// on context fields only through these; no general scripting is exposed.
func registerHelpers() {
	registerHelpersOnce.Do(func() {
		raymond.RegisterHelper("eq", func(a, b interface{}) bool {
			return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
		})
		raymond.RegisterHelper("and", func(a, b interface{}) bool {
			return truthy(a) && truthy(b)
		})
		raymond.RegisterHelper("or", func(a, b interface{}) bool {
			return truthy(a) || truthy(b)
		})
	})
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}

// simple {{variable}} references, including dotted paths; block helpers,
// subexpressions, and {{else}} are excluded.
var variableRef = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Render substitutes context values into the template body. Unresolved
// variables render as empty strings and are logged as warnings, which keeps
// rendering permissive while leaving a trail for template debugging.
func Render(tmpl PromptTemplate, context map[string]any) (string, error) {
	registerHelpers()

	for _, name := range missingVariables(tmpl.Body, context) {
		telemetry.Warn("prompt.unresolved_variable", map[string]any{
			"template": tmpl.Name,
			"version":  tmpl.Version,
			"variable": name,
		})
	}

	parsed, err := raymond.Parse(tmpl.Body)
	if err != nil {
		return "", fmt.Errorf("parse template %q v%d: %w", tmpl.Name, tmpl.Version, err)
	}
	out, err := parsed.Exec(context)
	if err != nil {
		return "", fmt.Errorf("render template %q v%d: %w", tmpl.Name, tmpl.Version, err)
	}
	return out, nil
}

func missingVariables(body string, context map[string]any) []string {
	seen := make(map[string]bool)
	var missing []string
	for _, match := range variableRef.FindAllStringSubmatch(body, -1) {
		name := match[1]
		if name == "else" || name == "this" {
			continue
		}
		root := name
		if idx := strings.IndexByte(name, '.'); idx >= 0 {
			root = name[:idx]
		}
		if seen[root] {
			continue
		}
		seen[root] = true
		if _, ok := context[root]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

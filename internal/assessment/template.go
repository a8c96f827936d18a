package assessment

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"lessonforge/internal/types"
)

// TemplateFuncs are available to every assessment prompt template.
var TemplateFuncs = template.FuncMap{
	"join": joinAny,
	"pct": func(v interface{}) string {
		if f, ok := toFloat(v); ok {
			return fmt.Sprintf("%.0f%%", f)
		}
		return fmt.Sprint(v)
	},
	"upper": strings.ToUpper,
}

// CompileTemplate parses the type's prompt template. An empty template yields nil.
func CompileTemplate(t types.AssessmentType) (*template.Template, error) {
	if strings.TrimSpace(t.PromptTemplate) == "" {
		return nil, nil
	}
	tmpl, err := template.New(t.Key).Funcs(TemplateFuncs).Option("missingkey=error").Parse(t.PromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid prompt template: %w", err)
	}
	return tmpl, nil
}

// Render renders one assessment item. Without a template, or when the template
// fails, the data is rendered as sorted key=value pairs.
func Render(tmpl *template.Template, displayName string, item types.AssessmentData) string {
	if tmpl != nil {
		var b strings.Builder
		if err := tmpl.Execute(&b, item.Data); err == nil {
			if out := strings.TrimSpace(b.String()); out != "" {
				return out
			}
		}
	}

	keys := make([]string, 0, len(item.Data))
	for k := range item.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, item.Data[k]))
	}
	name := displayName
	if name == "" {
		name = item.AssessmentType
	}
	return name + ": " + strings.Join(parts, ", ")
}

func joinAny(v interface{}, sep string) string {
	switch list := v.(type) {
	case []string:
		return strings.Join(list, sep)
	case []interface{}:
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, sep)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

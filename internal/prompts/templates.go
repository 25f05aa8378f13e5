package prompts

import (
	"fmt"
	"regexp"
	"sync"
)

// TemplateEngine manages prompt templates
type TemplateEngine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template represents a prompt template with variables
type Template struct {
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	Variables   []string `json:"variables"`
	Description string   `json:"description"`
}

var varRegex = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewTemplateEngine creates a new template engine with the default set
// registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.registerDefaults()
	return e
}

// RegisterTemplate registers a new template, replacing any previous one with
// the same name.
func (e *TemplateEngine) RegisterTemplate(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tmpl.Variables) == 0 {
		tmpl.Variables = ParseTemplateVariables(tmpl.Content)
	}
	e.templates[tmpl.Name] = tmpl
}

// GetTemplate retrieves a template by name
func (e *TemplateEngine) GetTemplate(name string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tmpl, ok := e.templates[name]
	if !ok {
		return nil, fmt.Errorf("template not found: %s", name)
	}
	return tmpl, nil
}

// Render renders a template, substituting {{variable}} placeholders from
// vars. Unknown placeholders are kept verbatim.
func (e *TemplateEngine) Render(templateName string, vars map[string]string) (string, error) {
	tmpl, err := e.GetTemplate(templateName)
	if err != nil {
		return "", err
	}

	result := varRegex.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		name := varRegex.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
	return result, nil
}

// ParseTemplateVariables extracts variables from a template
func ParseTemplateVariables(templateContent string) []string {
	matches := varRegex.FindAllStringSubmatch(templateContent, -1)

	uniqueVars := make(map[string]bool)
	var vars []string
	for _, match := range matches {
		if len(match) > 1 && !uniqueVars[match[1]] {
			uniqueVars[match[1]] = true
			vars = append(vars, match[1])
		}
	}
	return vars
}

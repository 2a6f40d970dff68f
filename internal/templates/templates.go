package templates

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

// ErrInvalidTemplate is returned when a template fails validation
var ErrInvalidTemplate = errors.New("invalid instruction template")

// ErrTemplateNotFound is returned when no template has the requested id
var ErrTemplateNotFound = errors.New("instruction template not found")

// MaxPromptLength bounds a template's system prompt in characters
const MaxPromptLength = 1000

//go:embed builtin/*.json
var builtinFS embed.FS

// Catalog holds the built-in templates plus any custom ones added at runtime
type Catalog struct {
	mu        sync.RWMutex
	templates []types.InstructionTemplate
}

// NewCatalog loads the built-in templates. A broken built-in is skipped
// with a warning rather than failing the whole catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}

	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		logger.Error("Failed to read built-in templates", err)
		return c
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			logger.Warnf("Failed to load template %s: %v", entry.Name(), err)
			continue
		}
		var t types.InstructionTemplate
		if err := json.Unmarshal(data, &t); err != nil {
			logger.Warnf("Failed to parse template %s: %v", entry.Name(), err)
			continue
		}
		t.IsBuiltIn = true
		if c.find(t.ID) >= 0 {
			logger.Warnf("Duplicate template ID found: %s", t.ID)
			continue
		}
		c.templates = append(c.templates, t)
	}

	logger.Debugf("Loaded %d built-in templates", len(c.templates))
	return c
}

func (c *Catalog) find(id string) int {
	for i, t := range c.templates {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Templates returns every template in load order
func (c *Catalog) Templates() []types.InstructionTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]types.InstructionTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

func (c *Catalog) Get(id string) (types.InstructionTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.find(id); i >= 0 {
		return c.templates[i], true
	}
	return types.InstructionTemplate{}, false
}

func (c *Catalog) ByCategory(category types.TemplateCategory) []types.InstructionTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []types.InstructionTemplate
	for _, t := range c.templates {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Add validates t and stores it as a custom template, replacing a custom
// template with the same id. Built-ins cannot be replaced.
func (c *Catalog) Add(t types.InstructionTemplate) error {
	if err := Validate(t); err != nil {
		return err
	}
	t.IsBuiltIn = false

	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.find(t.ID); i >= 0 {
		if c.templates[i].IsBuiltIn {
			return fmt.Errorf("%w: id %q belongs to a built-in template", ErrInvalidTemplate, t.ID)
		}
		c.templates[i] = t
		return nil
	}
	c.templates = append(c.templates, t)
	return nil
}

// Remove deletes a custom template; built-ins and unknown ids report false
func (c *Catalog) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.find(id)
	if i < 0 || c.templates[i].IsBuiltIn {
		return false
	}
	c.templates = append(c.templates[:i], c.templates[i+1:]...)
	return true
}

// Export renders a template as indented JSON
func (c *Catalog) Export(id string) ([]byte, error) {
	t, ok := c.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return json.MarshalIndent(t, "", "  ")
}

// Import parses, validates and adds a template exported by Export
func (c *Catalog) Import(data []byte) (types.InstructionTemplate, error) {
	var t types.InstructionTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("%w: invalid JSON format: %v", ErrInvalidTemplate, err)
	}
	if err := c.Add(t); err != nil {
		return t, err
	}
	t.IsBuiltIn = false
	return t, nil
}

// Validate checks the required fields and the prompt length
func Validate(t types.InstructionTemplate) error {
	var problems []string
	if strings.TrimSpace(t.ID) == "" {
		problems = append(problems, "template ID is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		problems = append(problems, "template name is required")
	}
	if strings.TrimSpace(t.SystemPrompt) == "" {
		problems = append(problems, "system prompt is required")
	}
	if t.Category == "" {
		problems = append(problems, "template category is required")
	}
	if len([]rune(t.SystemPrompt)) > MaxPromptLength {
		problems = append(problems, fmt.Sprintf("system prompt is too long (max %d characters)", MaxPromptLength))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTemplate, strings.Join(problems, ", "))
	}
	return nil
}

// Substitute replaces every ${name} placeholder with its value.
// Unknown placeholders are left as they are.
func Substitute(prompt string, vars map[string]string) string {
	if len(vars) == 0 {
		return prompt
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "${"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(prompt)
}

// Resolve finds the active template for settings, preferring custom
// templates stored in settings over the catalog
func (c *Catalog) Resolve(settings types.Settings) (types.InstructionTemplate, bool) {
	id := settings.Instructions.ActiveTemplate
	if id == "" {
		return types.InstructionTemplate{}, false
	}
	for _, t := range settings.Instructions.Custom {
		if t.ID == id {
			return t, true
		}
	}
	return c.Get(id)
}

// BuildPrompt produces the prompt for one analysis cycle. Template defaults
// are overridden by the user's variables. Without an active template the
// plain system instruction is used.
func (c *Catalog) BuildPrompt(settings types.Settings) string {
	t, ok := c.Resolve(settings)
	if !ok {
		if id := settings.Instructions.ActiveTemplate; id != "" {
			logger.Warnf("Active template %q not found, using system instruction", id)
		}
		return settings.Instructions.SystemInstruction
	}

	vars := make(map[string]string, len(t.Variables)+len(settings.Instructions.Variables))
	for k, v := range t.Variables {
		vars[k] = v
	}
	for k, v := range settings.Instructions.Variables {
		vars[k] = v
	}
	return Substitute(t.SystemPrompt, vars)
}

// LoadCustom adds the custom templates kept in settings. Invalid entries
// are skipped with a warning.
func (c *Catalog) LoadCustom(custom []types.InstructionTemplate) {
	for _, t := range custom {
		if err := c.Add(t); err != nil {
			logger.Warnf("Skipping custom template %q: %v", t.ID, err)
		}
	}
}

// UpsertCustom returns custom with t added, replacing an entry with the same id
func UpsertCustom(custom []types.InstructionTemplate, t types.InstructionTemplate) []types.InstructionTemplate {
	t.IsBuiltIn = false
	out := make([]types.InstructionTemplate, 0, len(custom)+1)
	replaced := false
	for _, existing := range custom {
		if existing.ID == t.ID {
			out = append(out, t)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, t)
	}
	return out
}

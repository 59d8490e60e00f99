// Package i18n renders caller-facing error messages from the locale catalog.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	i18ncatalog "github.com/louisbranch/counterdesk/internal/platform/i18n/catalog"
)

// Code is a machine-readable error code (a string here to avoid an import cycle).
type Code = string

// Catalog maps error codes to message templates for a specific locale.
type Catalog struct {
	locale    string
	messages  map[Code]string
	templates sync.Map // Code -> *template.Template
}

var (
	catalogsMu sync.RWMutex
	// catalogs holds override and runtime-built catalogs by locale.
	catalogs = map[string]*Catalog{}
)

// GetCatalog returns the catalog for the given locale.
// Falls back to en-US if the locale is not found.
func GetCatalog(locale string) *Catalog {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		requested = i18ncatalog.BaseLocale
	}
	if c, ok := lookupCatalog(requested); ok {
		return c
	}

	resolvedLocale, messages := i18ncatalog.Default().NamespaceMessagesWithFallback(requested, "errors")
	if c, ok := lookupCatalog(resolvedLocale); ok {
		return c
	}
	return storeCatalogIfAbsent(resolvedLocale, NewCatalog(resolvedLocale, messages))
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Has reports whether the catalog carries a template for code.
func (c *Catalog) Has(code Code) bool {
	_, ok := c.messages[code]
	return ok
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found, and to the
// raw template text if it fails to parse or execute.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	raw, ok := c.messages[code]
	if !ok {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	tmpl, err := c.template(code, raw)
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, metadata); err != nil {
		return raw
	}
	return buf.String()
}

func (c *Catalog) template(code Code, raw string) (*template.Template, error) {
	if cached, ok := c.templates.Load(code); ok {
		return cached.(*template.Template), nil
	}
	parsed, err := template.New(code).Option("missingkey=zero").Parse(raw)
	if err != nil {
		return nil, err
	}
	c.templates.Store(code, parsed)
	return parsed, nil
}

// RegisterCatalog registers a catalog for the given locale, replacing any
// existing one. Intended for init-time and test setup.
func RegisterCatalog(locale string, cat *Catalog) {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	catalogs[locale] = cat
}

// NewCatalog creates a new catalog with the given locale and messages.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	cloned := make(map[Code]string, len(messages))
	for key, value := range messages {
		cloned[key] = value
	}
	return &Catalog{
		locale:   locale,
		messages: cloned,
	}
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

func storeCatalogIfAbsent(locale string, candidate *Catalog) *Catalog {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	if existing, ok := catalogs[locale]; ok {
		return existing
	}
	catalogs[locale] = candidate
	return candidate
}

// Package i18n translates rule names, descriptions, categories and menu
// text.
//
// Messages come from YAML locale files (one per language) registered in
// an x/text catalog. Lookups try the active language, then English, then
// fall back to the untranslated text.
package i18n

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync/atomic"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"github.com/dshills/rulebook/internal/rules/rule"
)

// ErrUnsupportedLanguage is returned when no loaded locale matches.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Key identifies a menu text message.
type Key string

// Menu text keys.
const (
	KeyCurrentSettings        Key = "ui.current_settings"
	KeyVersion                Key = "ui.version"
	KeyBrowseCategories       Key = "ui.browse_categories"
	KeyListAllCategory        Key = "ui.list_all_category"
	KeyTags                   Key = "ui.tags"
	KeyCurrentValue           Key = "ui.current_value"
	KeyOptions                Key = "ui.options"
	KeyDefaultValue           Key = "ui.default_value"
	KeyModifiedValue          Key = "ui.modified_value"
	KeyUnknownRule            Key = "ui.unknown_rule"
	KeyLocked                 Key = "ui.locked"
	KeyPermissionDenied       Key = "ui.permission_denied"
	KeyChangePermanently      Key = "ui.change_permanently"
	KeyChangePermanentlyHover Key = "ui.change_permanently_hover"
	KeySwitchTo               Key = "ui.switch_to"
	KeySetDefault             Key = "ui.set_default"
	KeyRemoveDefault          Key = "ui.remove_default"
	KeyNotPersisted           Key = "ui.not_persisted"
	KeyInvalidValue           Key = "ui.invalid_value"
	KeySearchResults          Key = "ui.search_results"
	KeyAllSettings            Key = "ui.all_settings"
	KeyNoStore                Key = "ui.no_store"
)

// Translator renders user-facing text for one language at a time.
type Translator interface {
	// RuleName returns the display name of r, or its name.
	RuleName(namespace string, r *rule.Rule) string
	// RuleDescription returns the display description of r, or its
	// declared description.
	RuleDescription(namespace string, r *rule.Rule) string
	// Category returns the display name of a category tag, or the tag.
	Category(namespace, tag string) string
	// Text renders a menu message with printf-style arguments.
	Text(key Key, args ...any) string
}

// RuleNameKey returns the message key of a rule's display name.
func RuleNameKey(namespace, name string) string {
	return "rule." + namespace + "." + name + ".name"
}

// RuleDescriptionKey returns the message key of a rule's description.
func RuleDescriptionKey(namespace, name string) string {
	return "rule." + namespace + "." + name + ".desc"
}

// CategoryKey returns the message key of a category's display name.
func CategoryKey(namespace, tag string) string {
	return "category." + namespace + "." + tag
}

// Code converts a language tag to the rule value form, e.g. es_es.
func Code(tag language.Tag) string {
	return strings.ToLower(strings.ReplaceAll(tag.String(), "-", "_"))
}

// ParseCode parses a rule value such as en_us or es-ES.
func ParseCode(code string) (language.Tag, error) {
	return language.Parse(strings.ReplaceAll(strings.TrimSpace(code), "_", "-"))
}

//go:embed locales/*.yaml
var embeddedLocales embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog is a Translator backed by an x/text catalog.
type Catalog struct {
	builder   *catalog.Builder
	supported []language.Tag
	matcher   language.Matcher
	base      *message.Printer

	current atomic.Pointer[message.Printer]
	tag     atomic.Value
}

// New loads the built-in locales plus any *.yaml files found in extra
// and selects English.
func New(extra ...fs.FS) (*Catalog, error) {
	c := &Catalog{builder: catalog.NewBuilder(catalog.Fallback(language.AmericanEnglish))}

	sources := append([]fs.FS{mustSub(embeddedLocales, "locales")}, extra...)
	seen := make(map[string]bool)
	for _, src := range sources {
		tags, err := c.load(src)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if !seen[tag.String()] {
				seen[tag.String()] = true
				c.supported = append(c.supported, tag)
			}
		}
	}

	// the matcher prefers the first tag when nothing matches
	sort.SliceStable(c.supported, func(i, j int) bool {
		return isEnglish(c.supported[i]) && !isEnglish(c.supported[j])
	})
	c.matcher = language.NewMatcher(c.supported)
	c.base = message.NewPrinter(language.AmericanEnglish, message.Catalog(c.builder))
	c.current.Store(c.base)
	c.tag.Store(language.AmericanEnglish)
	return c, nil
}

func isEnglish(tag language.Tag) bool {
	return tag.String() == language.AmericanEnglish.String()
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

func (c *Catalog) load(fsys fs.FS) ([]language.Tag, error) {
	paths, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, fmt.Errorf("listing locales: %w", err)
	}
	sort.Strings(paths)

	var tags []language.Tag
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("reading locale %s: %w", path, err)
		}
		var file localeFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing locale %s: %w", path, err)
		}
		tag, err := language.Parse(file.Locale)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", path, err)
		}

		keys := make([]string, 0, len(file.Messages))
		for key := range file.Messages {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := c.builder.SetString(tag, key, file.Messages[key]); err != nil {
				return nil, fmt.Errorf("locale %s key %s: %w", path, key, err)
			}
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// SetLanguage switches the active language. code may use rule form
// (es_es) or BCP 47 form (es-ES).
func (c *Catalog) SetLanguage(code string) (language.Tag, error) {
	requested, err := ParseCode(code)
	if err != nil {
		return language.Und, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, code)
	}
	_, index, confidence := c.matcher.Match(requested)
	if confidence == language.No {
		return language.Und, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, code)
	}
	tag := c.supported[index]
	c.current.Store(message.NewPrinter(tag, message.Catalog(c.builder)))
	c.tag.Store(tag)
	return tag, nil
}

// Language returns the active language.
func (c *Catalog) Language() language.Tag {
	return c.tag.Load().(language.Tag)
}

// Languages returns the loaded languages, English first.
func (c *Catalog) Languages() []language.Tag {
	out := make([]language.Tag, len(c.supported))
	copy(out, c.supported)
	return out
}

// lookup renders key, reporting false when no locale defines it.
func (c *Catalog) lookup(key string, args ...any) (string, bool) {
	if s := c.current.Load().Sprintf(key, args...); s != missing(key, args) {
		return s, true
	}
	if s := c.base.Sprintf(key, args...); s != missing(key, args) {
		return s, true
	}
	return "", false
}

// missing is what a printer produces for an unknown key.
func missing(key string, args []any) string {
	return fmt.Sprintf(key, args...)
}

// RuleName implements Translator.
func (c *Catalog) RuleName(namespace string, r *rule.Rule) string {
	if s, ok := c.lookup(RuleNameKey(namespace, r.Name())); ok {
		return s
	}
	return r.Name()
}

// RuleDescription implements Translator.
func (c *Catalog) RuleDescription(namespace string, r *rule.Rule) string {
	if s, ok := c.lookup(RuleDescriptionKey(namespace, r.Name())); ok {
		return s
	}
	return r.Description()
}

// Category implements Translator.
func (c *Catalog) Category(namespace, tag string) string {
	if s, ok := c.lookup(CategoryKey(namespace, tag)); ok {
		return s
	}
	return tag
}

// Text implements Translator.
func (c *Catalog) Text(key Key, args ...any) string {
	if s, ok := c.lookup(string(key), args...); ok {
		return s
	}
	return string(key)
}

package middleware

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

const localizerKey = "localizer"

// Translator hält das Übersetzungsbündel für Fehlermeldungen der API
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage string
}

// NewTranslator lädt alle eingebetteten Übersetzungsdateien
func NewTranslator(defaultLanguage string) (*Translator, error) {
	// Standardsprache festlegen, falls nicht angegeben
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	tag, err := language.Parse(defaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid default language %q: %w", defaultLanguage, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := fs.ReadDir(locales, "locales")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		if _, err := bundle.LoadMessageFileFS(locales, path.Join("locales", file.Name())); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}

	return &Translator{bundle: bundle, defaultLanguage: defaultLanguage}, nil
}

// Localizer liefert einen Localizer für die angegebenen Sprachen in
// absteigender Priorität. Werte im Accept-Language-Format sind erlaubt.
func (t *Translator) Localizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(t.bundle, append(langs, t.defaultLanguage)...)
}

// I18n wählt die Sprache aus ?lang= oder Accept-Language und legt den
// Localizer im Kontext ab
func I18n(t *Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(localizerKey, t.Localizer(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// T übersetzt eine Meldung. Ohne Localizer oder bei unbekannter ID wird
// die ID selbst zurückgegeben.
func T(c *gin.Context, id string, data map[string]interface{}) string {
	value, ok := c.Get(localizerKey)
	if !ok {
		return id
	}
	localizer, ok := value.(*i18n.Localizer)
	if !ok {
		return id
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.Debugf("Missing translation for %s: %v", id, err)
		return id
	}
	return msg
}

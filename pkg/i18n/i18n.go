package i18n

import (
	"embed"
	"errors"
	"log/slog"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var (
	//go:embed *.toml
	f embed.FS
)

type Localizer struct {
	bundle   *i18n.Bundle
	registry map[string]*i18n.Localizer
}

var (
	defaultLocalizer     Localizer
	defaultLocalizerOnce sync.Once
)

// Default returns a process wide localizer loaded with every allowed language.
func Default() Localizer {
	defaultLocalizerOnce.Do(func() {
		var langs []string
		for k := range ALLOW_LANG {
			langs = append(langs, k)
		}
		defaultLocalizer = NewLocalizer(langs...)
	})
	return defaultLocalizer
}

func NewLocalizer(languages ...string) Localizer {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, lang := range languages {
		path := lang + ".toml"
		if _, err := bundle.LoadMessageFileFS(f, path); err != nil {
			slog.Error("Failed to load i18n message config", slog.String("error", err.Error()), slog.String("lang", lang), slog.String("file", path))
		}
	}

	l := Localizer{
		bundle:   bundle,
		registry: make(map[string]*i18n.Localizer),
	}
	for _, lang := range languages {
		l.registry[lang] = i18n.NewLocalizer(l.bundle, lang)
	}
	return l
}

// Get resolves a message id. Unknown ids are returned as is, so literal
// messages pass through untouched.
func (l Localizer) Get(lang string, id string) string {
	return l.GetWithData(lang, id, nil)
}

func (l Localizer) GetWithData(lang, id string, data map[string]interface{}) string {
	localizer, ok := l.registry[lang]
	if !ok {
		localizer, ok = l.registry[DEFAULT_LANG]
	}
	if !ok {
		return id
	}

	str, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		var notFound *i18n.MessageNotFoundErr
		if !errors.As(err, &notFound) {
			slog.Warn("failed to localize message", slog.String("id", id), slog.String("lang", lang), slog.String("error", err.Error()))
		}
		return id
	}
	return str
}

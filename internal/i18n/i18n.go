// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/Xuanwo/go-locale"
	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/spreak"
	"golang.org/x/text/language"
)

//go:embed locale/*
var locales embed.FS

// Translator localizes notification texts and renders human friendly relative times.
type Translator struct {
	*spreak.Localizer
	humanizer *humanize.Humanizer
	tag       language.Tag
}

func New(loc string) (*Translator, error) {
	tag := language.Make(loc)
	var err error
	if loc == "" {
		tag, err = locale.Detect()
		if err != nil {
			tag = language.English // Unable to detect locale, fallback to English
		}
	}

	localeFS, err := fs.Sub(locales, "locale")
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}

	bundle, err := spreak.NewBundle(
		spreak.WithSourceLanguage(language.English),
		spreak.WithFallbackLanguage(language.English),
		spreak.WithDomainFs("", localeFS),
		spreak.WithLanguage(tag),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create i18n bundle: %w", err)
	}

	collection, err := humanize.New(humanize.WithLocale(de.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	return &Translator{
		Localizer: spreak.NewLocalizer(bundle, tag),
		humanizer: collection.CreateHumanizer(tag),
		tag:       tag,
	}, nil
}

// Language returns the language the translator was created for.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// NaturalTime returns a localized relative representation of t, e.g. "2 minutes ago".
func (t *Translator) NaturalTime(ts time.Time) string {
	return t.humanizer.NaturalTime(ts)
}

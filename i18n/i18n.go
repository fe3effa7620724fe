// Package i18n translates the CLI's messages.
//
// Catalogs are gettext .po files in the "kclib" domain, embedded under
// locales/<lang>/LC_MESSAGES. Messages missing from the selected catalog,
// or printed before Init, stay in English.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

//go:embed all:locales
var locales embed.FS

const domain = "kclib"

// po is nil while messages are untranslated.
var po *gotext.Locale

// Init selects the catalog that best serves lang, or the user's locale when
// lang is empty. A locale with no catalog, such as "C", leaves messages in
// English.
func Init(lang string) {
	po = nil
	if lang == "" {
		lang = localeFromEnv()
	}
	dir, ok := catalogFor(lang)
	if !ok {
		return
	}

	l := gotext.NewLocaleFSWithPath(dir, locales, "locales")
	l.AddDomain(domain)
	l.SetDomain(domain)
	po = l
}

// T returns the translation of msgid.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N returns the plural form of a message for n, using the catalog's plural
// rule or English's when there is no catalog.
func N(singular, plural string, n int) string {
	if po == nil {
		if n == 1 {
			return singular
		}
		return plural
	}
	return po.GetN(singular, plural, n)
}

// catalogFor returns the embedded locale directory matching lang. English
// is the source language and has none.
func catalogFor(lang string) (string, bool) {
	want, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return "", false
	}
	entries, err := locales.ReadDir("locales")
	if err != nil {
		return "", false
	}

	supported := []language.Tag{language.English}
	dirs := []string{""}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		tag, err := language.Parse(strings.ReplaceAll(e.Name(), "_", "-"))
		if err != nil {
			continue
		}
		supported = append(supported, tag)
		dirs = append(dirs, e.Name())
	}

	_, i, conf := language.NewMatcher(supported).Match(want)
	if conf == language.No || dirs[i] == "" {
		return "", false
	}
	return dirs[i], true
}

// localeFromEnv returns the message locale from LANGUAGE, LC_ALL,
// LC_MESSAGES and LANG, in gettext's order, without codeset or modifier.
// "C" and "POSIX" are skipped.
func localeFromEnv() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if env == "LANGUAGE" {
			val, _, _ = strings.Cut(val, ":")
		}
		val, _, _ = strings.Cut(val, ".")
		val, _, _ = strings.Cut(val, "@")
		if val != "" && val != "C" && val != "POSIX" {
			return val
		}
	}
	return ""
}

package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/kclib/tldata"
	"github.com/minios-linux/kclib/translator"
)

// Loader drives the translation and blacklist load states of a
// translator.Translator.
type Loader struct {
	Translator *translator.Translator
	Fetcher    *Fetcher

	// Translations is the URL or path of the translation data. Empty leaves
	// the translation status untouched.
	Translations string
	// Blacklist is the URL or path of the submission blacklist. Empty leaves
	// the blacklist status untouched, so untranslated lines stay backlogged.
	Blacklist string
	// Keys says how translation data keys are interpreted.
	Keys tldata.KeyMode

	// OnTranslations, when set, is called with every table installed.
	OnTranslations func(table translator.Table)

	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l *Loader) fetcher() *Fetcher {
	if l.Fetcher == nil {
		l.Fetcher = &Fetcher{Logger: l.Logger}
	}
	return l.Fetcher
}

// Load loads translation data and the blacklist concurrently. The two are
// independent, so one failing does not cancel the other; the returned
// error joins both failures.
func (l *Loader) Load(ctx context.Context) error {
	l.fetcher()

	var (
		g            errgroup.Group
		tlErr, blErr error
	)
	g.Go(func() error {
		tlErr = l.LoadTranslations(ctx)
		return tlErr
	})
	g.Go(func() error {
		blErr = l.LoadBlacklist(ctx)
		return blErr
	})
	if err := g.Wait(); err != nil {
		return errors.Join(tlErr, blErr)
	}
	return nil
}

// LoadTranslations fetches and installs the translation data. On failure
// the status becomes LoadStatusError and the previous table stays in place
// but unused.
func (l *Loader) LoadTranslations(ctx context.Context) error {
	if l.Translations == "" {
		return nil
	}
	tl := l.Translator
	tl.SetLoadStatus(translator.LoadStatusLoading)

	data, err := l.fetcher().Fetch(ctx, l.Translations)
	if err != nil {
		tl.SetLoadStatus(translator.LoadStatusError)
		return fmt.Errorf("loading translations: %w", err)
	}

	table, err := tldata.DecodeTable(data, tldata.FormatOf(l.Translations), l.Keys)
	if err != nil {
		tl.SetLoadStatus(translator.LoadStatusError)
		return fmt.Errorf("loading translations from %s: %w", l.Translations, err)
	}

	tl.SetTranslations(table, translator.LoadStatusLoaded)
	l.logger().Info("translations loaded", "source", l.Translations, "lines", len(table))
	if l.OnTranslations != nil {
		l.OnTranslations(table)
	}
	return nil
}

// LoadBlacklist fetches and installs the submission blacklist. A "*" -> "*"
// entry is dropped with a warning rather than failing the load.
func (l *Loader) LoadBlacklist(ctx context.Context) error {
	if l.Blacklist == "" {
		return nil
	}
	tl := l.Translator
	tl.SetBlacklistLoadStatus(translator.LoadStatusLoading)

	data, err := l.fetcher().Fetch(ctx, l.Blacklist)
	if err != nil {
		tl.SetBlacklistLoadStatus(translator.LoadStatusError)
		return fmt.Errorf("loading blacklist: %w", err)
	}

	bl, err := tldata.DecodeBlacklist(data, tldata.FormatOf(l.Blacklist))
	if err != nil {
		tl.SetBlacklistLoadStatus(translator.LoadStatusError)
		return fmt.Errorf("loading blacklist from %s: %w", l.Blacklist, err)
	}
	if bl.DropWildcardPair() {
		l.logger().Warn("ignoring blacklist entry that matches everything", "source", l.Blacklist)
	}

	tl.SetBlacklist(bl, translator.LoadStatusLoaded)
	l.logger().Info("blacklist loaded", "source", l.Blacklist, "tags", len(bl))
	return nil
}

// Reload reloads whichever of the two sources is location.
func (l *Loader) Reload(ctx context.Context, location string) error {
	switch location {
	case l.Translations:
		return l.LoadTranslations(ctx)
	case l.Blacklist:
		return l.LoadBlacklist(ctx)
	}
	return nil
}

// LocalPaths returns the sources that are read from disk.
func (l *Loader) LocalPaths() []string {
	var paths []string
	for _, loc := range []string{l.Translations, l.Blacklist} {
		if loc != "" && !IsRemote(loc) {
			paths = append(paths, loc)
		}
	}
	return paths
}

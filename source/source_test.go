package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/minios-linux/kclib/tldata"
	"github.com/minios-linux/kclib/translator"
)

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f := &Fetcher{}
	for _, loc := range []string{path, "file://" + path} {
		data, err := f.Fetch(context.Background(), loc)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", loc, err)
		}
		if string(data) != "{}" {
			t.Fatalf("Fetch(%s) = %q", loc, data)
		}
	}

	if _, err := f.Fetch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Fetch of a missing file should fail")
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "kclib-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := &Fetcher{MaxRetries: 3, Backoff: time.Millisecond, UserAgent: "kclib-test"}
	data, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "ok" {
		t.Fatalf("Fetch = %q, want ok", data)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("server called %d times, want 3", n)
	}
}

func TestFetchClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := &Fetcher{MaxRetries: 3, Backoff: time.Millisecond}
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("Fetch error = %v, want ErrStatus", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("server called %d times, want 1", n)
	}
}

func TestFetchCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &Fetcher{Backoff: time.Hour}
	if _, err := f.Fetch(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("Fetch error = %v, want context.Canceled", err)
	}
}

func newDataServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoaderLoad(t *testing.T) {
	srv := newDataServer(t, map[string]string{
		"/tl/en.json":     `{"907060870": "bonjour"}`,
		"/blacklist.json": `{"*": ["api_id", "*"]}`,
	})

	var reported []string
	tl := translator.New(func(line, tag, key string) { reported = append(reported, line) })
	tl.Translate("early", "port", "api_name")

	l := &Loader{
		Translator:   tl,
		Fetcher:      &Fetcher{Backoff: time.Millisecond},
		Translations: srv.URL + "/tl/en.json",
		Blacklist:    srv.URL + "/blacklist.json",
	}
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if tl.LoadStatus() != translator.LoadStatusLoaded || tl.BlacklistLoadStatus() != translator.LoadStatusLoaded {
		t.Fatalf("statuses = %v / %v, want loaded", tl.LoadStatus(), tl.BlacklistLoadStatus())
	}
	if got := tl.Translate("hello", "", ""); got != "bonjour" {
		t.Fatalf("Translate(hello) = %q, want bonjour", got)
	}

	// The wildcard pair was dropped, so regular lines are still reported.
	tl.Translate("late", "port", "api_name")
	tl.Translate("id", "port", "api_id")
	if len(reported) != 2 || reported[0] != "early" || reported[1] != "late" {
		t.Fatalf("reported = %v, want [early late]", reported)
	}
}

func TestLoaderErrors(t *testing.T) {
	srv := newDataServer(t, map[string]string{
		"/bad.json": `{"not-a-checksum": "x"}`,
	})

	tl := translator.New(nil)
	tl.SetTranslations(translator.Table{translator.Checksum("a"): "b"}, translator.LoadStatusLoaded)

	l := &Loader{
		Translator:   tl,
		Fetcher:      &Fetcher{MaxRetries: -1},
		Translations: srv.URL + "/bad.json",
		Blacklist:    srv.URL + "/missing.json",
	}
	err := l.Load(context.Background())
	if err == nil {
		t.Fatal("Load should fail")
	}
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("Load error = %v, want it to wrap ErrStatus", err)
	}

	if tl.LoadStatus() != translator.LoadStatusError {
		t.Fatalf("LoadStatus() = %v, want error", tl.LoadStatus())
	}
	if tl.BlacklistLoadStatus() != translator.LoadStatusError {
		t.Fatalf("BlacklistLoadStatus() = %v, want error", tl.BlacklistLoadStatus())
	}
	if got := tl.Translate("a", "", ""); got != "a" {
		t.Fatalf("Translate(a) after failed load = %q, want a", got)
	}
}

func TestLoaderLocalSourceKeys(t *testing.T) {
	dir := t.TempDir()
	tlPath := filepath.Join(dir, "en.yaml")
	if err := os.WriteFile(tlPath, []byte("hello: bonjour\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tl := translator.New(nil)
	var installed []int
	l := &Loader{
		Translator:     tl,
		Translations:   tlPath,
		Keys:           tldata.KeysSource,
		OnTranslations: func(table translator.Table) { installed = append(installed, len(table)) },
	}
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := tl.Translate("hello", "", ""); got != "bonjour" {
		t.Fatalf("Translate(hello) = %q, want bonjour", got)
	}
	if tl.BlacklistLoadStatus() != translator.LoadStatusNotLoaded {
		t.Fatalf("BlacklistLoadStatus() = %v, want not loaded", tl.BlacklistLoadStatus())
	}

	if err := os.WriteFile(tlPath, []byte("hello: salut\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := l.Reload(context.Background(), tlPath); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := tl.Translate("hello", "", ""); got != "salut" {
		t.Fatalf("Translate(hello) after reload = %q, want salut", got)
	}

	if len(installed) != 2 || installed[0] != 1 || installed[1] != 1 {
		t.Fatalf("OnTranslations calls = %v, want [1 1]", installed)
	}

	if paths := l.LocalPaths(); len(paths) != 1 || paths[0] != tlPath {
		t.Fatalf("LocalPaths() = %v, want [%s]", paths, tlPath)
	}
}

func TestLoaderFailureLeavesOtherLoad(t *testing.T) {
	srv := newDataServer(t, map[string]string{
		"/blacklist.json": `{"*": ["api_id"]}`,
	})

	tl := translator.New(nil)
	l := &Loader{
		Translator:   tl,
		Fetcher:      &Fetcher{MaxRetries: -1},
		Translations: srv.URL + "/missing.json",
		Blacklist:    srv.URL + "/blacklist.json",
	}
	err := l.Load(context.Background())
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("Load error = %v, want it to wrap ErrStatus", err)
	}
	if tl.LoadStatus() != translator.LoadStatusError {
		t.Fatalf("LoadStatus() = %v, want error", tl.LoadStatus())
	}
	if tl.BlacklistLoadStatus() != translator.LoadStatusLoaded {
		t.Fatalf("BlacklistLoadStatus() = %v, want loaded", tl.BlacklistLoadStatus())
	}
}

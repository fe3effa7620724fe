package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/minios-linux/kclib/config"
	"github.com/minios-linux/kclib/submitlog"
	"github.com/minios-linux/kclib/tldata"
	"github.com/minios-linux/kclib/translator"
)

func TestPayloadPath(t *testing.T) {
	tests := []struct {
		file, urlPath, want string
	}{
		{"getData.json", "", "getData"},
		{"/tmp/inbox/port.json", "", "port"},
		{"getData.json", "/kcsapi/api_port/port", "/kcsapi/api_port/port"},
		{"", "", ""},
		{"-", "", ""},
	}

	for _, tc := range tests {
		if got := payloadPath(tc.file, tc.urlPath); got != tc.want {
			t.Fatalf("payloadPath(%q, %q) = %q, want %q", tc.file, tc.urlPath, got, tc.want)
		}
	}
}

func TestAbsLocation(t *testing.T) {
	for _, loc := range []string{"", "https://example.org/en.json", "file:///tmp/en.json", "/tmp/en.json"} {
		if got := absLocation(loc); got != loc {
			t.Fatalf("absLocation(%q) = %q, want unchanged", loc, got)
		}
	}

	got := absLocation("en.json")
	if !filepath.IsAbs(got) || filepath.Base(got) != "en.json" {
		t.Fatalf("absLocation(en.json) = %q, want an absolute path", got)
	}
}

func TestSourceFlagsOverrideConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Report = "https://example.org/report"
	cfg.Proxy = "http://file-proxy:3128"

	var sf sourceFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addSourceFlags(fs, &sf)
	if err := fs.Parse([]string{"--lang", "ru", "--keys", "source", "--timeout", "2s", "--max-retries", "-1", "--translations", "https://example.org/{lang}.json"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if err := sf.apply(fs, cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.TranslationsLocation() != "https://example.org/ru.json" {
		t.Errorf("TranslationsLocation() = %q", cfg.TranslationsLocation())
	}
	if cfg.KeyMode() != tldata.KeysSource {
		t.Errorf("KeyMode() = %v, want source", cfg.KeyMode())
	}
	if cfg.TimeoutDuration().String() != "2s" || cfg.MaxRetries != -1 {
		t.Errorf("timeout/retries = %v/%d", cfg.TimeoutDuration(), cfg.MaxRetries)
	}
	if cfg.Report != "https://example.org/report" || cfg.Proxy != "http://file-proxy:3128" {
		t.Errorf("unset flags overrode config: report=%q proxy=%q", cfg.Report, cfg.Proxy)
	}
}

func TestSourceFlagsValidate(t *testing.T) {
	var sf sourceFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addSourceFlags(fs, &sf)
	if err := fs.Parse([]string{"--keys", "md5"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := sf.apply(fs, config.Default()); err == nil {
		t.Fatal("apply should reject an unknown key mode")
	}
}

func TestWriteChecksums(t *testing.T) {
	var buf bytes.Buffer
	writeChecksums(&buf, []string{"那珂", "hello"}, nil)

	want := " 124853853  07711e5d  那珂\n" +
		" 907060870  3610a686  hello\n"
	if buf.String() != want {
		t.Fatalf("writeChecksums() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	writeChecksums(&buf, []string{"那珂", "hello"}, translator.Table{124853853: "Naka"})
	want = " 124853853  07711e5d  那珂  Naka\n" +
		" 907060870  3610a686  hello  -\n"
	if buf.String() != want {
		t.Fatalf("writeChecksums() with table = %q, want %q", buf.String(), want)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		status translator.LoadStatus
		color  string
	}{
		{translator.LoadStatusLoaded, colorGreen},
		{translator.LoadStatusError, colorRed},
		{translator.LoadStatusLoading, colorYellow},
		{translator.LoadStatusNotLoaded, colorYellow},
	}

	for _, tc := range tests {
		got := statusLabel(tc.status)
		if !strings.HasPrefix(got, tc.color) || !strings.Contains(got, tc.status.String()) {
			t.Fatalf("statusLabel(%v) = %q", tc.status, got)
		}
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Info("quiet")
	newLogger(&buf, false).Warn("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("default logger output = %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, true).Debug("detail")
	if !strings.Contains(buf.String(), "detail") {
		t.Fatalf("verbose logger output = %q", buf.String())
	}
}

func TestTranslatePayload(t *testing.T) {
	var reported []string
	tl := translator.New(func(line, tag, key string) {
		reported = append(reported, tag+"/"+key+"/"+line)
	})
	tl.SetTranslations(translator.Table{translator.Checksum("那珂"): "Naka"}, translator.LoadStatusLoaded)
	tl.SetBlacklist(translator.NewBlacklist(map[string][]string{"*": {"api_id"}}), translator.LoadStatusLoaded)

	got := translatePayload(tl, `svdata={"api_name":"那珂","api_id":"x","api_info":"y"}`, "/kcsapi/api_start2/getData")
	want := `svdata={"api_name":"Naka","api_id":"x","api_info":"y"}`
	if got != want {
		t.Fatalf("translatePayload() = %q, want %q", got, want)
	}
	if len(reported) != 1 || reported[0] != "getData/api_info/y" {
		t.Fatalf("reported = %v, want [getData/api_info/y]", reported)
	}
}

func TestInboxProcessor(t *testing.T) {
	inbox := t.TempDir()
	outDir := t.TempDir()

	tl := translator.New(nil)
	tl.SetTranslations(translator.Table{translator.Checksum("hello"): "bonjour"}, translator.LoadStatusLoaded)

	src := filepath.Join(inbox, "port.json")
	if err := os.WriteFile(src, []byte(`{"msg":"hello"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := &inboxProcessor{tl: tl, outDir: outDir, seen: make(map[string]uint32)}
	p.process(src)
	p.process(src)

	data, err := os.ReadFile(filepath.Join(outDir, "port.json"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"msg":"bonjour"}` {
		t.Fatalf("translated payload = %q", data)
	}
	if p.count() != 1 {
		t.Fatalf("count() = %d, want 1 (unchanged file is skipped)", p.count())
	}

	if err := os.WriteFile(src, []byte(`{"msg":"hello","n":"1"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p.process(src)
	if p.count() != 2 {
		t.Fatalf("count() = %d, want 2 after the file changed", p.count())
	}

	p.process(filepath.Join(inbox, "missing.json"))
	if p.count() != 2 {
		t.Fatalf("count() = %d, missing files must be skipped", p.count())
	}
}

func TestRunConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "ships.yaml")
	out := filepath.Join(dir, "en.json")
	if err := os.WriteFile(in, []byte("那珂: Naka\n大和: Yamato\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := runConvert(in, out); err != nil {
		t.Fatalf("runConvert: %v", err)
	}

	table, err := tldata.ParseTableFile(out, tldata.KeysChecksum)
	if err != nil {
		t.Fatalf("ParseTableFile: %v", err)
	}
	if table[124853853] != "Naka" || table[2852128416] != "Yamato" {
		t.Fatalf("converted table = %v", table)
	}

	if err := runConvert(filepath.Join(dir, "missing.yaml"), out); err == nil {
		t.Fatal("runConvert of a missing file should fail")
	}
}

func TestSessionLoadsAndReports(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("hello: bonjour\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.Default()
	cfg.Dir = dir
	cfg.Translations = "en.yaml"
	cfg.Keys = "source"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := startSession(ctx, cfg)
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}
	if err := s.load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := translatePayload(s.tl, `{"a":"hello","b":"world"}`, "port"); got != `{"a":"bonjour","b":"world"}` {
		t.Fatalf("translatePayload() = %q", got)
	}
	if s.tl.Backlog() != 0 {
		t.Fatalf("Backlog() = %d, want 0 without a configured blacklist", s.tl.Backlog())
	}

	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.reporter.Submitted() != 1 {
		t.Fatalf("Submitted() = %d, want 1", s.reporter.Submitted())
	}
	if _, err := os.Stat(filepath.Join(dir, ".kclib.lock")); !os.IsNotExist(err) {
		t.Fatal("submit log must not be written when lines only go to stderr")
	}
}

func TestSessionCloseFlushesAfterInterrupt(t *testing.T) {
	cfg := config.Default()
	cfg.Dir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := startSession(ctx, cfg)
	if err != nil {
		t.Fatalf("startSession: %v", err)
	}

	s.tl.Translate("a", "port", "api_info")
	s.tl.Translate("b", "port", "api_info")
	cancel()

	if err := s.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.reporter.Submitted() != 2 || s.reporter.Dropped() != 0 {
		t.Fatalf("submitted=%d dropped=%d, want 2 and 0", s.reporter.Submitted(), s.reporter.Dropped())
	}
}

func TestWriteBlacklist(t *testing.T) {
	var buf bytes.Buffer
	writeBlacklist(&buf, translator.NewBlacklist(map[string][]string{"port": {"api_name", "api_id"}, "*": {"api_info"}}))

	want := "    *:" + strings.Repeat(" ", 11) + "api_info\n" +
		"    port:" + strings.Repeat(" ", 8) + "api_id, api_name\n"
	if buf.String() != want {
		t.Fatalf("writeBlacklist() = %q, want %q", buf.String(), want)
	}
}

func TestRunTranslateFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "en.yaml"), []byte("hello: bonjour\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	in := filepath.Join(dir, "port.json")
	if err := os.WriteFile(in, []byte(`svdata={"a":"hello"}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.Default()
	cfg.Dir = dir
	cfg.Translations = "en.yaml"
	cfg.Keys = "source"

	out := filepath.Join(dir, "out.json")
	if err := runTranslate(cfg, in, "", out); err != nil {
		t.Fatalf("runTranslate: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `svdata={"a":"bonjour"}` {
		t.Fatalf("translated payload = %q", data)
	}

	if err := runTranslate(cfg, filepath.Join(dir, "missing.json"), "", out); err == nil {
		t.Fatal("runTranslate of a missing file should fail")
	}
}

func TestRunForget(t *testing.T) {
	dir := t.TempDir()
	sent, err := submitlog.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sent.Mark("getData", "api_name", "a")
	sent.Mark("port", "api_info", "b")
	if err := sent.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := runForget(dir, []string{"getData", "unknown"}); err != nil {
		t.Fatalf("runForget: %v", err)
	}

	sent, err = submitlog.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := sent.Tags(); len(got) != 1 || got[0] != "port" {
		t.Fatalf("Tags() = %v, want [port]", got)
	}
}

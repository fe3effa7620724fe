// kclib is a line-translation resolver for intercepted JSON game data.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/kclib/config"
	"github.com/minios-linux/kclib/i18n"
	"github.com/minios-linux/kclib/report"
	"github.com/minios-linux/kclib/source"
	"github.com/minios-linux/kclib/stream"
	"github.com/minios-linux/kclib/submitlog"
	"github.com/minios-linux/kclib/tldata"
	"github.com/minios-linux/kclib/translator"
	"github.com/minios-linux/kclib/watch"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// newLogger builds the slog logger handed to the library packages. They log
// progress at info level, which the CLI already reports itself, so only
// warnings show unless verbose is set.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kclib",
		Short: i18n.T("Translate strings in intercepted JSON payloads"),
		Long: `kclib: line-translation resolver for intercepted JSON payloads.

Every string value found in a payload is looked up by its CRC-32 checksum in
a translation table fetched from a translation server or read from disk.
Strings without a translation are reported upstream unless the submission
blacklist exempts them.

Commands:
  translate   Translate a payload file or stdin
  watch       Translate payloads dropped into an inbox directory
  status      Show configuration and load translation data
  checksum    Print the checksums of strings
  convert     Convert a source-keyed table to checksum keys
  forget      Forget lines already reported from locations`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(newLogger(os.Stderr, verbose))
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (where .kclib.yaml lives)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newTranslateCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newChecksumCmd(),
		newConvertCmd(),
		newForgetCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	i18n.Init("")
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kclib version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Shared source flags
// ---------------------------------------------------------------------------

// sourceFlags override .kclib.yaml for a single run.
type sourceFlags struct {
	lang         string
	translations string
	keys         string
	blacklist    string
	report       string
	proxy        string
	timeout      time.Duration
	maxRetries   int
}

func addSourceFlags(fs *pflag.FlagSet, f *sourceFlags) {
	fs.StringVar(&f.lang, "lang", "", "Translation language (replaces {lang} in the translations location)")
	fs.StringVar(&f.translations, "translations", "", "Translation data URL or path")
	fs.StringVar(&f.keys, "keys", "", "Translation data keys: checksum or source")
	fs.StringVar(&f.blacklist, "blacklist", "", "Submission blacklist URL or path")
	fs.StringVar(&f.report, "report", "", "Endpoint for untranslated lines (default: print them to stderr)")
	fs.StringVar(&f.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	fs.DurationVar(&f.timeout, "timeout", 0, "HTTP request timeout")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "Maximum HTTP retries (negative disables retries)")
}

// apply copies the flags that were set on the command line into cfg.
// Local paths given as flags are relative to the working directory.
func (f *sourceFlags) apply(fs *pflag.FlagSet, cfg *config.File) error {
	if fs.Changed("lang") {
		cfg.Language = f.lang
	}
	if fs.Changed("translations") {
		cfg.Translations = absLocation(f.translations)
	}
	if fs.Changed("keys") {
		cfg.Keys = f.keys
	}
	if fs.Changed("blacklist") {
		cfg.Blacklist = absLocation(f.blacklist)
	}
	if fs.Changed("report") {
		cfg.Report = f.report
	}
	if fs.Changed("proxy") {
		cfg.Proxy = f.proxy
	}
	if fs.Changed("timeout") {
		cfg.Timeout = f.timeout.String()
	}
	if fs.Changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	return cfg.Validate()
}

func absLocation(loc string) string {
	if loc == "" || source.IsRemote(loc) || strings.HasPrefix(loc, "file://") {
		return loc
	}
	abs, err := filepath.Abs(loc)
	if err != nil {
		return loc
	}
	return abs
}

func loadConfig(fs *pflag.FlagSet, f *sourceFlags) (*config.File, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if err := f.apply(fs, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Session: translator + loader + reporter for one run
// ---------------------------------------------------------------------------

type session struct {
	cfg      *config.File
	tl       *translator.Translator
	loader   *source.Loader
	reporter *report.Reporter
	sent     *submitlog.Log
	done     chan error
}

func startSession(ctx context.Context, cfg *config.File) (*session, error) {
	logger := slog.Default()

	// Lines printed to stderr are not remembered across runs.
	sent := submitlog.New()
	if cfg.Report != "" {
		var err error
		sent, err = submitlog.Load(cfg.SubmitLogDir())
		if err != nil {
			return nil, err
		}
	}

	rep := report.New(report.Options{
		Endpoint:   cfg.Report,
		Client:     source.MakeHTTPClient(cfg.Proxy, cfg.TimeoutDuration()),
		Log:        sent,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})

	s := &session{
		cfg:      cfg,
		tl:       translator.New(rep.Report),
		reporter: rep,
		sent:     sent,
		done:     make(chan error, 1),
	}
	s.loader = &source.Loader{
		Translator: s.tl,
		Fetcher: &source.Fetcher{
			Proxy:      cfg.Proxy,
			Timeout:    cfg.TimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
			UserAgent:  "kclib/" + version,
			Logger:     logger,
		},
		Translations:   cfg.TranslationsLocation(),
		Blacklist:      cfg.BlacklistLocation(),
		Keys:           cfg.KeyMode(),
		Logger:         logger,
		OnTranslations: s.forgetTranslated,
	}

	// Without a blacklist nothing is exempt; an empty one lets lines be
	// reported instead of waiting forever in the backlog.
	if s.loader.Blacklist == "" {
		s.tl.SetBlacklist(nil, translator.LoadStatusLoaded)
	}

	// The reporter outlives an interrupt so close can still flush it.
	go func() { s.done <- rep.Run(context.WithoutCancel(ctx)) }()
	return s, nil
}

// load fetches translation data and the blacklist, reporting the outcome.
func (s *session) load(ctx context.Context) error {
	if s.loader.Translations == "" {
		logWarning("%s", i18n.T("No translation data configured; payloads pass through unchanged"))
	}
	err := s.loader.Load(ctx)
	n, tags, _ := s.tl.Stats()
	if s.tl.LoadStatus() == translator.LoadStatusLoaded {
		logSuccess(i18n.N("Loaded %d translation", "Loaded %d translations", n), n)
	}
	if s.loader.Blacklist != "" && s.tl.BlacklistLoadStatus() == translator.LoadStatusLoaded {
		logSuccess(i18n.N("Loaded blacklist for %d location", "Loaded blacklist for %d locations", tags), tags)
	}
	return err
}

// forgetTranslated drops submitted lines that now have a translation, so
// they are reported again if a later table loses them.
func (s *session) forgetTranslated(table translator.Table) {
	for _, tag := range s.sent.Tags() {
		s.sent.Clean(tag, table)
	}
	if s.sent.Path() == "" {
		return
	}
	if err := s.sent.Save(); err != nil {
		logWarning(i18n.T("Could not save submit log: %v"), err)
	}
}

// close decides the backlog, waits for queued reports and returns the
// reporter's final error.
func (s *session) close() error {
	s.tl.Drain()
	if n := s.tl.Backlog(); n > 0 {
		logWarning(i18n.N("%d untranslated line is still waiting for the blacklist", "%d untranslated lines are still waiting for the blacklist", n), n)
	}

	s.reporter.Close()
	err := <-s.done

	if d := int(s.reporter.Dropped()); d > 0 {
		logWarning(i18n.N("%d untranslated line was dropped", "%d untranslated lines were dropped", d), d)
	}
	if n := int(s.reporter.Submitted()); n > 0 && s.cfg.Report != "" {
		logSuccess(i18n.N("Reported %d untranslated line", "Reported %d untranslated lines", n), n)
	}
	return err
}

// interruptContext returns a context canceled on the first interrupt.
func interruptContext(msg string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", msg)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// ---------------------------------------------------------------------------
// translate (one payload from a file or stdin)
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		sf      sourceFlags
		urlPath string
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate a payload file or stdin",
		Long: `Translate every string value in a JSON payload.

The payload may start with a non-JSON prefix such as "svdata=", which is
kept. The location tag used for reporting and the blacklist is the last
component of --path; without --path it is the file name without extension.

Examples:
  # Translate a captured response
  kclib translate --path /kcsapi/api_start2/getData getData.json

  # Use a local table with original text as keys
  kclib translate --translations en.yaml --keys source < port.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &sf)
			if err != nil {
				return err
			}
			input := ""
			if len(args) == 1 {
				input = args[0]
			}
			return runTranslate(cfg, input, urlPath, outPath)
		},
	}

	addSourceFlags(cmd.Flags(), &sf)
	cmd.Flags().StringVar(&urlPath, "path", "", "Request path the payload was served from")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the result to a file instead of stdout")

	return cmd
}

func runTranslate(cfg *config.File, input, urlPath, outPath string) error {
	ctx, cancel := interruptContext(i18n.T("Interrupted, flushing reports..."))
	defer cancel()

	in := io.Reader(os.Stdin)
	if input != "" && input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		defer f.Close()
		in = f
	}

	s, err := startSession(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.load(ctx); err != nil {
		logWarning("%v", err)
	}

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			s.close()
			return fmt.Errorf("writing result: %w", err)
		}
		defer f.Close()
		out = f
	}

	st := stream.New(s.tl, payloadPath(input, urlPath))
	slog.Debug("translating payload", "tag", st.Tag())
	if err := st.Copy(out, in); err != nil {
		s.close()
		return err
	}

	return s.close()
}

// payloadPath returns urlPath, or the file name without extension when it
// is empty, so a file called getData.json is tagged "getData".
func payloadPath(file, urlPath string) string {
	if urlPath != "" || file == "" || file == "-" {
		return urlPath
	}
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func translatePayload(tl stream.Resolver, body, urlPath string) string {
	return stream.New(tl, urlPath).Process(body)
}

// ---------------------------------------------------------------------------
// watch (inbox of payload files)
// ---------------------------------------------------------------------------

func newWatchCmd() *cobra.Command {
	var (
		sf     sourceFlags
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "watch <inbox>",
		Short: "Translate payloads dropped into an inbox directory",
		Long: `Watch a directory for .json payload files and write a translated copy
of each one to the output directory. Files already present are processed
first. Local translation data and blacklist files are reloaded when they
change. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &sf)
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = filepath.Join(args[0], "translated")
			}
			return runWatch(cfg, args[0], outDir)
		},
	}

	addSourceFlags(cmd.Flags(), &sf)
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "Directory for translated payloads (default <inbox>/translated)")

	return cmd
}

func runWatch(cfg *config.File, inbox, outDir string) error {
	ctx, cancel := interruptContext(i18n.T("Interrupted, stopping watchers..."))
	defer cancel()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", outDir, err)
	}

	s, err := startSession(ctx, cfg)
	if err != nil {
		return err
	}
	if err := s.load(ctx); err != nil {
		logWarning("%v", err)
	}

	p := &inboxProcessor{tl: s.tl, outDir: outDir, seen: make(map[string]uint32)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watch.Inbox(gctx, inbox, p.process, nil)
	})

	// Watch local data files for edits.
	locations := make(map[string]string)
	var paths []string
	for _, loc := range s.loader.LocalPaths() {
		path := strings.TrimPrefix(loc, "file://")
		locations[path] = loc
		paths = append(paths, path)
	}
	if len(paths) > 0 {
		g.Go(func() error {
			return watch.Files(gctx, paths, func(path string) {
				if err := s.loader.Reload(gctx, locations[path]); err != nil {
					logError(i18n.T("Reloading %s: %v"), path, err)
					return
				}
				logInfo(i18n.T("Reloaded %s"), path)
			}, nil)
		})
	}

	logInfo(i18n.T("Watching %s (press Ctrl+C to stop)"), inbox)
	werr := g.Wait()

	if err := s.close(); err != nil {
		logWarning("%v", err)
	}
	if werr != nil && !errors.Is(werr, context.Canceled) {
		return werr
	}
	logSuccess(i18n.N("Translated %d payload", "Translated %d payloads", p.count()), p.count())
	return nil
}

// inboxProcessor translates inbox files into outDir, skipping files whose
// content it has already seen.
type inboxProcessor struct {
	tl     stream.Resolver
	outDir string

	mu        sync.Mutex
	seen      map[string]uint32
	processed int
}

func (p *inboxProcessor) process(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logWarning(i18n.T("Skipping %s: %v"), path, err)
		return
	}

	sum := translator.Checksum(string(data))
	p.mu.Lock()
	if prev, ok := p.seen[path]; ok && prev == sum {
		p.mu.Unlock()
		return
	}
	p.seen[path] = sum
	p.mu.Unlock()

	out := translatePayload(p.tl, string(data), payloadPath(path, ""))
	dst := filepath.Join(p.outDir, filepath.Base(path))
	if err := os.WriteFile(dst, []byte(out), 0644); err != nil {
		logError(i18n.T("Writing %s: %v"), dst, err)
		return
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	slog.Debug("payload translated", "in", path, "out", dst)
}

func (p *inboxProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed
}

// ---------------------------------------------------------------------------
// status (configuration + load results)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var sf sourceFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and load translation data",
		Long: `Show the effective configuration, fetch translation data and the
blacklist once, and print their load status and sizes together with the
submit log summary. Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), &sf)
			if err != nil {
				return err
			}
			return runStatus(cfg)
		},
	}

	addSourceFlags(cmd.Flags(), &sf)

	return cmd
}

func runStatus(cfg *config.File) error {
	ctx, cancel := interruptContext(i18n.T("Interrupted"))
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n%sConfiguration%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))

	cfgPath := filepath.Join(cfg.Dir, config.FileName)
	if _, err := os.Stat(cfgPath); err != nil {
		cfgPath = i18n.T("none (defaults)")
	}
	fmt.Fprintf(os.Stderr, "  Config:       %s\n", cfgPath)
	fmt.Fprintf(os.Stderr, "  Language:     %s\n", cfg.LanguageTag())
	fmt.Fprintf(os.Stderr, "  Translations: %s (%s keys)\n", orNone(cfg.TranslationsLocation()), cfg.KeyMode())
	fmt.Fprintf(os.Stderr, "  Blacklist:    %s\n", orNone(cfg.BlacklistLocation()))
	fmt.Fprintf(os.Stderr, "  Report:       %s\n", orNone(cfg.Report))
	if cfg.Proxy != "" {
		fmt.Fprintf(os.Stderr, "  Proxy:        %s\n", cfg.Proxy)
	}
	fmt.Fprintf(os.Stderr, "  Timeout:      %s, %d retries\n", cfg.TimeoutDuration(), cfg.MaxRetries)
	fmt.Fprintln(os.Stderr)

	tl := translator.New(nil)
	loader := &source.Loader{
		Translator: tl,
		Fetcher: &source.Fetcher{
			Proxy:      cfg.Proxy,
			Timeout:    cfg.TimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
			UserAgent:  "kclib/" + version,
		},
		Translations: cfg.TranslationsLocation(),
		Blacklist:    cfg.BlacklistLocation(),
		Keys:         cfg.KeyMode(),
	}
	loadErr := loader.Load(ctx)
	translations, tags, _ := tl.Stats()

	fmt.Fprintf(os.Stderr, "%sData%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Translations: %s  %d lines\n", statusLabel(tl.LoadStatus()), translations)
	fmt.Fprintf(os.Stderr, "  Blacklist:    %s  %d locations\n", statusLabel(tl.BlacklistLoadStatus()), tags)
	writeBlacklist(os.Stderr, tl.Blacklist())

	sent, err := submitlog.Load(cfg.SubmitLogDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "  Submit log:   %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "  Submit log:   %s\n", sent.Summary())
	}
	fmt.Fprintln(os.Stderr)

	return loadErr
}

// writeBlacklist lists the blacklisted keys of each location.
func writeBlacklist(w io.Writer, bl translator.Blacklist) {
	for _, tag := range bl.Tags() {
		fmt.Fprintf(w, "    %-12s %s\n", tag+":", strings.Join(bl.Keys(tag), ", "))
	}
}

func orNone(s string) string {
	if s == "" {
		return i18n.T("(none)")
	}
	return s
}

// statusLabel colors a load status for the status table.
func statusLabel(s translator.LoadStatus) string {
	color := colorYellow
	switch s {
	case translator.LoadStatusLoaded:
		color = colorGreen
	case translator.LoadStatusError:
		color = colorRed
	}
	return fmt.Sprintf("%s%-10s%s", color, s, colorReset)
}

// ---------------------------------------------------------------------------
// forget (drop submit log entries)
// ---------------------------------------------------------------------------

func newForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <location>...",
		Short: "Forget lines already reported from locations",
		Long: `Remove the given locations from the submit log, so their untranslated
lines are reported again the next time they are seen. A location is the
last path component of the endpoint, for example "getData".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootDir)
			if err != nil {
				return err
			}
			return runForget(cfg.SubmitLogDir(), args)
		},
	}

	return cmd
}

func runForget(dir string, tags []string) error {
	sent, err := submitlog.Load(dir)
	if err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, tag := range sent.Tags() {
		known[tag] = true
	}

	removed := 0
	for _, tag := range tags {
		if !known[tag] {
			logWarning(i18n.T("Nothing was reported from %s"), tag)
			continue
		}
		sent.RemoveTag(tag)
		removed++
	}
	if removed == 0 {
		return nil
	}

	if err := sent.Save(); err != nil {
		return err
	}
	logSuccess(i18n.N("Forgot %d location", "Forgot %d locations", removed), removed)
	return nil
}

// ---------------------------------------------------------------------------
// checksum (print CRC-32 of strings)
// ---------------------------------------------------------------------------

func newChecksumCmd() *cobra.Command {
	var (
		tablePath string
		keys      string
	)

	cmd := &cobra.Command{
		Use:   "checksum <text>...",
		Short: "Print the checksums of strings",
		Long: `Print the decimal and hexadecimal CRC-32 of each argument, as used for
translation table keys. With --table, also print the translation each
string has in a local table.

Example:
  kclib checksum 那珂 大和
  kclib checksum --table en.json 那珂`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var table translator.Table
			if tablePath != "" {
				mode, err := tldata.ParseKeyMode(keys)
				if err != nil {
					return err
				}
				if table, err = tldata.ParseTableFile(tablePath, mode); err != nil {
					return err
				}
			}
			writeChecksums(os.Stdout, args, table)
			return nil
		},
	}

	cmd.Flags().StringVar(&tablePath, "table", "", "Local translation table to look the strings up in")
	cmd.Flags().StringVar(&keys, "keys", tldata.KeysChecksum.String(), "Table keys: checksum or source")

	return cmd
}

// writeChecksums prints one line per string. When table is non-nil each
// line ends with the translation, or "-" when there is none.
func writeChecksums(w io.Writer, lines []string, table translator.Table) {
	for _, line := range lines {
		sum := translator.Checksum(line)
		if table == nil {
			fmt.Fprintf(w, "%10d  %08x  %s\n", sum, sum, line)
			continue
		}
		tl, ok := table[sum]
		if !ok {
			tl = "-"
		}
		fmt.Fprintf(w, "%10d  %08x  %s  %s\n", sum, sum, line, tl)
	}
}

// ---------------------------------------------------------------------------
// convert (source-keyed table -> checksum-keyed JSON)
// ---------------------------------------------------------------------------

func newConvertCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Convert a source-keyed table to checksum keys",
		Long: `Read a JSON or YAML map of original text to translation and write it as
checksum-keyed JSON, the format served by the translation server.

Example:
  kclib convert ships.en.yaml -o en.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(args[0], outPath)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the table to a file instead of stdout")

	return cmd
}

func runConvert(input, outPath string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading %s: %w", input, err)
	}
	pairs, err := tldata.DecodePairs(data, tldata.FormatOf(input))
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	out, err := tldata.EncodeTable(pairs)
	if err != nil {
		return err
	}

	if outPath == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(outPath, out, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	logSuccess(i18n.N("Wrote %d translation to %s", "Wrote %d translations to %s", len(pairs)), len(pairs), outPath)
	return nil
}

// resxsync — synchronizes .resx resource files with a translation backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/openlocalize/resxsync/backend"
	"github.com/openlocalize/resxsync/config"
	"github.com/openlocalize/resxsync/langmeta"
	"github.com/openlocalize/resxsync/lockfile"
	"github.com/openlocalize/resxsync/resxfile"
	"github.com/openlocalize/resxsync/scan"
	"github.com/openlocalize/resxsync/settings"
	"github.com/openlocalize/resxsync/syncer"
	"github.com/openlocalize/resxsync/writer"
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

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resxsync",
		Short: "Synchronize .resx resource files with a translation backend",
		Long: `resxsync — synchronizes .resx resource files with a translation backend.

Discovers neutral (culture-invariant) .resx files in a project tree,
uploads them, triggers machine translation for missing entries, then
downloads per-locale exports and writes translated files next to their
neutral counterparts. Unchanged files are left untouched.

Commands:
  status      Show neutral files and per-locale translation presence
  sync        Run the full synchronization pipeline
  auth        Manage backend API tokens
  version     Show version information

Configuration:
  A .resxsync.yaml in the project root provides defaults; command-line
  flags override it. The API token is resolved from --token, the
  RESXSYNC_TOKEN environment variable, a .env file, or the credential
  store, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag — inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newStatusCmd(),
		newSyncCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
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
			fmt.Printf("resxsync version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// status (read-only: neutral files + per-locale presence)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show neutral files and per-locale translation presence",
		Long: `List the neutral .resx files discovered under the project root and,
for each configured locale, whether a translated counterpart exists and
how many keys it is missing. Does not modify any files and makes no
backend calls.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}

	return cmd
}

func runStatus() error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}
	merged := config.Merge(cfg, config.Flags{})

	excludes := merged.ExcludeDirs
	if len(excludes) == 0 {
		excludes = scan.DefaultExcludes
	}
	scanner := scan.NewWithFs(afero.NewOsFs(), resxfile.Extension, excludes)
	files, err := scanner.Scan(rootDir)
	if err != nil {
		return err
	}

	absRoot, _ := filepath.Abs(rootDir)
	fmt.Fprintf(os.Stderr, "\n%sProject%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	fmt.Fprintf(os.Stderr, "  Root:       %s\n", absRoot)
	if merged.ProjectID != "" {
		fmt.Fprintf(os.Stderr, "  Project:    %s\n", merged.ProjectID)
	}
	if len(merged.Locales) > 0 {
		display := make([]string, len(merged.Locales))
		for i, l := range merged.Locales {
			display[i] = langmeta.Display(l)
		}
		fmt.Fprintf(os.Stderr, "  Locales:    %s\n", strings.Join(display, ", "))
	} else {
		fmt.Fprintf(os.Stderr, "  Locales:    none configured\n")
	}
	fmt.Fprintln(os.Stderr)

	if len(files) == 0 {
		logInfo("No neutral %s files found under %s", resxfile.Extension, absRoot)
		return nil
	}

	fmt.Fprintf(os.Stderr, "%sNeutral Files%s\n", colorBlue, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
	for _, f := range files {
		data, err := os.ReadFile(f.AbsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-40s (unreadable: %v)\n", f.RelPath, err)
			continue
		}
		neutral, err := resxfile.KeySetOf(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  %-40s (malformed: %v)\n", f.RelPath, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "  %-40s %d key(s)\n", f.RelPath, len(neutral))

		for _, locale := range merged.Locales {
			dest := writer.DestinationPath(f.Dir, f.BaseName(), locale, resxfile.Extension)
			fmt.Fprintf(os.Stderr, "    %-38s %s\n", locale, localePresence(dest, neutral))
		}
	}
	fmt.Fprintln(os.Stderr)

	return nil
}

// localePresence describes one translated counterpart for the status table.
func localePresence(path string, neutral resxfile.KeySet) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "missing"
	}
	candidate, err := resxfile.KeySetOf(data)
	if err != nil {
		return "malformed"
	}
	if missing := neutral.Missing(candidate); len(missing) > 0 {
		return fmt.Sprintf("incomplete (%d key(s) missing)", len(missing))
	}
	return "complete"
}

// ---------------------------------------------------------------------------
// sync (full pipeline)
// ---------------------------------------------------------------------------

type syncArgs struct {
	projectID      string
	token          string
	locales        []string
	sourceLocale   string
	timeoutMinutes int
	baseURL        string
	dryRun         bool
	force          bool
	verbose        bool
}

func newSyncCmd() *cobra.Command {
	var a syncArgs

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the full synchronization pipeline",
		Long: `Upload neutral .resx files, trigger machine translation for missing
entries, then export, download, and write translated files per locale.

The process exits non-zero if any failure was recorded. Machine
translation problems are reported as warnings and never fail the run.

Examples:
  resxsync sync --project-id proj-42 --locales fr,de
  resxsync sync --locales fr-CA --timeout 30
  resxsync sync --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(a)
		},
	}

	cmd.Flags().StringVar(&a.projectID, "project-id", "", "Backend project ID")
	cmd.Flags().StringVar(&a.token, "token", "", "Backend API token")
	cmd.Flags().StringSliceVar(&a.locales, "locales", nil, "Target locales (comma-separated)")
	cmd.Flags().StringVar(&a.sourceLocale, "source-locale", "", "Source locale of neutral files (default en)")
	cmd.Flags().IntVar(&a.timeoutMinutes, "timeout", 0, "Per-locale export timeout in minutes (default 10)")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "Backend endpoint (default "+backend.DefaultBaseURL+")")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Report planned actions without remote calls or writes")
	cmd.Flags().BoolVar(&a.force, "force", false, "Re-upload all files, ignoring "+lockfile.LockFileName)
	cmd.Flags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")

	return cmd
}

func runSync(a syncArgs) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return err
	}
	merged := config.Merge(cfg, config.Flags{
		ProjectID:      a.projectID,
		SourceLocale:   a.sourceLocale,
		Locales:        a.locales,
		TimeoutMinutes: a.timeoutMinutes,
		BaseURL:        a.baseURL,
	})

	if merged.ProjectID == "" {
		return errors.New("no project ID: use --project-id or set project_id in " + config.FileName)
	}
	if len(merged.Locales) == 0 {
		return errors.New("no target locales: use --locales or set locales in " + config.FileName)
	}
	for _, l := range merged.Locales {
		if !scan.IsLocaleTag(l) {
			return fmt.Errorf("invalid locale tag %q", l)
		}
	}

	baseURL := merged.BaseURL
	if baseURL == "" {
		baseURL = backend.DefaultBaseURL
	}

	var token string
	if !a.dryRun {
		var source string
		token, source = config.ResolveToken(a.token, rootDir, hostOf(baseURL))
		if token == "" {
			return errors.New("no API token: use --token, set " + config.TokenEnvVar +
				", or run 'resxsync auth set'")
		}
		if a.verbose {
			logInfo("Using API token from %s", source)
		}
	}

	// Graceful cancellation on Ctrl-C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logWarning("Interrupted, stopping after current step...")
		cancel()
	}()

	client := backend.New(baseURL, token, backend.DefaultTimeout)
	s := syncer.New(client, syncer.Options{
		ProjectID:     merged.ProjectID,
		SourceLocale:  merged.SourceLocale,
		Locales:       merged.Locales,
		DryRun:        a.dryRun,
		ExportTimeout: merged.ExportTimeout,
		ExcludeDirs:   merged.ExcludeDirs,
		UseLock:       !a.force,
		Verbose:       a.verbose,
		OnLog:         logInfo,
		OnWarn:        logWarning,
		OnError:       logError,
	})

	stats, err := s.Run(ctx, rootDir)
	printSummary(stats, a.dryRun)
	if err != nil {
		return err
	}
	if stats.HasFailures() {
		return fmt.Errorf("completed with %d failure(s)", len(stats.Failures))
	}
	if !a.dryRun {
		logSuccess("Synchronization complete")
	}
	return nil
}

// printSummary renders the end-of-run counters and failure list.
func printSummary(stats *syncer.RunStats, dryRun bool) {
	title := "Summary"
	if dryRun {
		title = "Summary (dry run)"
	}
	fmt.Fprintf(os.Stderr, "\n%s%s%s\n", colorBlue, title, colorReset)
	fmt.Fprintln(os.Stderr, strings.Repeat("─", 40))
	fmt.Fprintf(os.Stderr, "  Neutral files:     %d\n", stats.NeutralFilesFound)
	fmt.Fprintf(os.Stderr, "  Uploaded:          %d\n", stats.FilesUploaded)
	fmt.Fprintf(os.Stderr, "  Locales processed: %d\n", stats.LocalesProcessed)
	fmt.Fprintf(os.Stderr, "  Created:           %d\n", stats.FilesCreated)
	fmt.Fprintf(os.Stderr, "  Updated:           %d\n", stats.FilesUpdated)
	fmt.Fprintf(os.Stderr, "  Unchanged:         %d\n", stats.FilesSkipped)

	if len(stats.Failures) > 0 {
		fmt.Fprintln(os.Stderr)
		logError("%d failure(s):", len(stats.Failures))
		for _, f := range stats.Failures {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
	}
	fmt.Fprintln(os.Stderr)
}

// hostOf extracts the host from a backend URL for the credential store key.
func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}

// ---------------------------------------------------------------------------
// auth (token management)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage backend API tokens",
		Long: `Manage API tokens stored in the credential store
(` + settings.FilePath() + `).

Tokens are keyed by backend host, so an on-premise instance and the
hosted service can hold separate tokens.

Examples:
  resxsync auth set tok-abc123              Store a token for the default host
  resxsync auth set tok-abc123 --base-url https://translate.corp.internal
  resxsync auth show                        Show stored tokens (masked)
  resxsync auth remove                      Remove the default host's token`,
	}

	cmd.AddCommand(
		newAuthSetCmd(),
		newAuthShowCmd(),
		newAuthRemoveCmd(),
	)

	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "set <token>",
		Short: "Store an API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := hostOf(baseURL)
			if err := settings.SetToken(host, args[0]); err != nil {
				return err
			}
			logSuccess("Token stored for %s (%s)", host, settings.FilePath())
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", backend.DefaultBaseURL, "Backend endpoint the token belongs to")

	return cmd
}

func newAuthShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored tokens (masked)",
		Run: func(cmd *cobra.Command, args []string) {
			hosts := settings.Hosts()
			if len(hosts) == 0 {
				logInfo("No stored tokens (%s)", settings.FilePath())
				return
			}
			sort.Strings(hosts)
			for _, h := range hosts {
				fmt.Fprintf(os.Stderr, "  %-30s %s\n", h, settings.MaskToken(settings.GetToken(h)))
			}
		},
	}

	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	var baseURL string
	var all bool

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All tokens removed")
				return nil
			}
			host := hostOf(baseURL)
			if err := settings.Remove(host); err != nil {
				return err
			}
			logSuccess("Token removed for %s", host)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", backend.DefaultBaseURL, "Backend endpoint to remove the token for")
	cmd.Flags().BoolVar(&all, "all", false, "Remove tokens for every host")

	return cmd
}

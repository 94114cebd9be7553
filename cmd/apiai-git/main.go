// apiai-git backs up the intents and entities of an API.ai agent into a git
// history repository and restores any saved snapshot back onto the agent.
//
// Usage:
//
//	apiai-git init <repo_url>                  Link a git repository to store snapshots in
//	apiai-git save [--commit] [--push]         Fetch the agent state and write a snapshot
//	apiai-git load [--commit-hash <h>]         Restore a snapshot onto the agent
//	apiai-git log [-n N]                       List saved snapshots
//	apiai-git show <commit> [intents|entities] Print a stored snapshot as JSON
//	apiai-git diff [--commit-hash <h>]         Show what load would change
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/wondertwin-ai/apiai-git/internal/backup"
	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/config"
	"github.com/wondertwin-ai/apiai-git/internal/history"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	opts := parseArgs(os.Args[1:], os.Getenv)
	opts.configPath = config.ResolvePath(opts.configPath)

	if opts.cmd == "" || opts.cmd == "help" || opts.cmd == "--help" || opts.cmd == "-h" {
		printUsage()
		if opts.cmd == "" {
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch opts.cmd {
	case "version", "--version", "-v":
		fmt.Printf("apiai-git version %s\n", version)
		return
	case "init":
		err = cmdInit(ctx, opts)
	case "save":
		err = cmdSave(ctx, opts)
	case "load":
		err = cmdLoad(ctx, opts)
	case "log":
		err = cmdLog(opts, os.Stdout)
	case "show":
		err = cmdShow(opts, os.Stdout)
	case "diff":
		err = cmdDiff(ctx, opts)
	default:
		fmt.Fprintf(os.Stderr, "apiai-git: unknown command %q\n\n", opts.cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "apiai-git: %v\n", err)
		if hint := guidance(err, opts); hint != "" {
			fmt.Fprintf(os.Stderr, "\n%s\n", hint)
		}
		os.Exit(exitCode(err))
	}
}

type options struct {
	cmd        string
	args       []string
	configPath string
	verbose    bool
}

// parseArgs extracts the subcommand, positional args, and global options.
func parseArgs(raw []string, getenv func(string) string) options {
	opts := options{configPath: config.DefaultConfigFile}
	if p := getenv("APIAI_GIT_CONFIG"); p != "" {
		opts.configPath = p
	}

	var filtered []string
	for i := 0; i < len(raw); i++ {
		switch {
		case raw[i] == "--config" && i+1 < len(raw):
			opts.configPath = raw[i+1]
			i++
		case raw[i] == "--verbose":
			opts.verbose = true
		default:
			filtered = append(filtered, raw[i])
		}
	}

	if len(filtered) > 0 {
		opts.cmd = filtered[0]
		opts.args = filtered[1:]
	}
	return opts
}

func printUsage() {
	fmt.Printf(`apiai-git %s: API.ai agent backups in git

Usage:
  apiai-git [--config <path>] [--verbose] <command> [arguments]

Commands:
  init <repo_url>                   Link a git repository to hold snapshots
  save [--commit] [--push]          Fetch intents and entities and write a snapshot
                                    (--push implies --commit)
  load [--commit-hash <h>]          Restore a snapshot onto the agent; without a
       [--dry-run]                  hash, choose among the last 10 commits
  log [-n N]                        List saved snapshots (default 10)
  show <commit> [intents|entities]  Print a stored snapshot as JSON
  diff [--commit-hash <h>]          Show the calls load would make
  version                           Print the apiai-git version

Options:
  --config <path>   Path to config (default: ./.apiai-git.toml or ./.apiai-git.yaml)
  --verbose         Log every API request

Environment:
  API_AI_DEV_TOKEN  Developer access token of the agent (name set by token_env)
  APIAI_GIT_CONFIG  Override default config path
`, version)
}

// ---------------------------------------------------------------------------
// shared setup
// ---------------------------------------------------------------------------

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func author(cfg *config.Config) history.Author {
	return history.Author{Name: cfg.AuthorName, Email: cfg.AuthorEmail}
}

// openWorkflows validates the environment before anything touches the
// network: configuration, credential, then the history link.
func openWorkflows(opts options) (*backup.Workflows, *history.Repo, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	token, err := cfg.LoadCredentials(os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	repo, err := history.Open(cfg.HistoryDir, author(cfg))
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(opts.verbose)
	c, err := client.New(client.Config{
		BaseURL:    cfg.BaseURL,
		Token:      token,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}

	wf := backup.New(c, repo, backup.Options{
		BaseURL:     c.BaseURL(),
		ToolVersion: version,
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	return wf, repo, nil
}

func openHistory(opts options) (*history.Repo, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.HistoryDir, author(cfg))
}

// flagValue returns the value following name in args, if present.
func flagValue(args []string, name string) (string, bool) {
	for i := 0; i < len(args); i++ {
		if args[i] == name && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// apiai-git init
// ---------------------------------------------------------------------------

func cmdInit(ctx context.Context, opts options) error {
	if len(opts.args) < 1 {
		return fmt.Errorf("usage: apiai-git init <repo_url>")
	}
	repoURL := opts.args[0]

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	if _, err := history.Init(ctx, cfg.HistoryDir, repoURL, hc, author(cfg)); err != nil {
		return err
	}
	fmt.Printf("Linked %s into %s\n", repoURL, cfg.HistoryDir)

	if _, err := os.Stat(opts.configPath); os.IsNotExist(err) {
		if err := config.Save(opts.configPath, cfg); err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
		fmt.Printf("Wrote default config to %s\n", opts.configPath)
	}
	return nil
}

// ---------------------------------------------------------------------------
// apiai-git save
// ---------------------------------------------------------------------------

func cmdSave(ctx context.Context, opts options) error {
	saveOpts := backup.SaveOptions{
		Commit: hasFlag(opts.args, "--commit"),
		Push:   hasFlag(opts.args, "--push"),
	}

	wf, _, err := openWorkflows(opts)
	if err != nil {
		return err
	}

	fmt.Println("Fetching intents and entities...")
	res, err := wf.Save(ctx, saveOpts)
	if err != nil {
		return err
	}

	fmt.Printf("  Intents:  %d\n", res.Count(resource.Intents))
	fmt.Printf("  Entities: %d\n", res.Count(resource.Entities))
	switch {
	case res.Commit != nil:
		fmt.Printf("Committed %s  %s\n", res.Commit.Short(), res.Commit.Subject())
	case res.Unchanged:
		fmt.Println("No changes since the last snapshot; nothing committed.")
	default:
		fmt.Println("Snapshot written. Run with --commit to record it.")
	}
	if res.Pushed {
		fmt.Println("Pushed to origin.")
	}
	return nil
}

// ---------------------------------------------------------------------------
// apiai-git load / diff
// ---------------------------------------------------------------------------

func loadOptions(args []string) backup.LoadOptions {
	hash, _ := flagValue(args, "--commit-hash")
	return backup.LoadOptions{
		CommitHash: hash,
		Chooser:    history.PromptChooser{In: os.Stdin, Out: os.Stdout},
		DryRun:     hasFlag(args, "--dry-run"),
	}
}

func cmdLoad(ctx context.Context, opts options) error {
	wf, _, err := openWorkflows(opts)
	if err != nil {
		return err
	}

	lo := loadOptions(opts.args)
	res, err := wf.Load(ctx, lo)
	if lo.DryRun {
		if err != nil {
			return err
		}
		printPlans(res)
		return nil
	}

	if res.Commit.Hash != "" && len(res.Summaries) > 0 {
		fmt.Printf("Restored %s  %s\n", res.Commit.Short(), res.Commit.Subject())
		for _, sum := range res.Summaries {
			fmt.Printf("  %s\n", sum)
			for _, f := range sum.Failures {
				fmt.Printf("    FAILED %s\n", f.Error())
			}
		}
	}
	return err
}

func cmdDiff(ctx context.Context, opts options) error {
	wf, _, err := openWorkflows(opts)
	if err != nil {
		return err
	}
	lo := loadOptions(opts.args)
	res, err := wf.Plan(ctx, lo)
	if err != nil {
		return err
	}
	printPlans(res)
	return nil
}

func printPlans(res backup.LoadResult) {
	fmt.Printf("Plan for %s  %s\n", res.Commit.Short(), res.Commit.Subject())
	for _, kp := range res.Plans {
		fmt.Printf("\n%s\n", kp.Plan)
		if desc := kp.Plan.Describe(kp.Current); desc != "" {
			fmt.Print(desc)
		}
	}
}

// ---------------------------------------------------------------------------
// apiai-git log / show
// ---------------------------------------------------------------------------

func cmdLog(opts options, w io.Writer) error {
	n := history.DefaultRecent
	if v, ok := flagValue(opts.args, "-n"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return fmt.Errorf("invalid -n %q: expected a positive number", v)
		}
		n = parsed
	}

	repo, err := openHistory(opts)
	if err != nil {
		return err
	}
	commits, err := repo.Recent(n)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "  %-3s %-9s %-20s %s\n", "#", "COMMIT", "DATE", "SNAPSHOT")
	for i, c := range commits {
		fmt.Fprintf(w, "  %-3d %-9s %-20s %s\n", i, c.Short(), c.When.Local().Format("2006-01-02 15:04:05"), c.Subject())
	}
	return nil
}

// cmdShow prints the snapshot documents of a commit, keyed by kind, along
// with the capture metadata under "snapshot" when the commit has it.
func cmdShow(opts options, w io.Writer) error {
	if len(opts.args) < 1 {
		return fmt.Errorf("usage: apiai-git show <commit> [intents|entities]")
	}
	kinds := resource.Kinds()
	if len(opts.args) > 1 {
		kind, err := resource.ParseKind(opts.args[1])
		if err != nil {
			return err
		}
		kinds = []resource.Kind{kind}
	}

	repo, err := openHistory(opts)
	if err != nil {
		return err
	}
	c, err := repo.Resolve(opts.args[0])
	if err != nil {
		return err
	}

	out := make(map[string]any, len(kinds)+1)
	meta, err := repo.ReadMeta(c)
	switch {
	case err == nil:
		out["snapshot"] = meta
	case !errors.Is(err, history.ErrBlobNotFound):
		return err
	}
	for _, kind := range kinds {
		snap, err := backup.ReadSnapshot(repo, c, kind)
		if err != nil {
			return err
		}
		out[string(kind)] = snap.Documents()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

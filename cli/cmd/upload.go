package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sluice/cli/config"
	"github.com/pithecene-io/sluice/engine"
	"github.com/pithecene-io/sluice/log"
	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/report"
	"github.com/pithecene-io/sluice/transport"
	"github.com/pithecene-io/sluice/types"
)

// Exit codes for upload.
const (
	exitSuccess     = 0
	exitBatchFailed = 1
	exitConfigError = 2
	exitTransport   = 3
)

// UploadCommand returns the upload command, the only command that talks to
// the server.
func UploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Chunk, deduplicate and upload artifacts, then assemble them server-side",
		ArgsUsage: "[files...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to sluice.yaml config file",
			},
			&cli.StringFlag{
				Name:    "manifest",
				Aliases: []string{"m"},
				Usage:   "Path to artifact manifest (YAML)",
			},
			// Server flags
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Server base URL",
				EnvVars: []string{"SLUICE_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Auth token",
				EnvVars: []string{"SLUICE_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "org",
				Usage:   "Organization slug",
				EnvVars: []string{"SLUICE_ORG"},
			},
			&cli.StringFlag{
				Name:    "project",
				Usage:   "Project slug",
				EnvVars: []string{"SLUICE_PROJECT"},
			},
			// Wait flags
			&cli.BoolFlag{
				Name:  "wait",
				Usage: "Block until every assembly reaches a terminal state",
			},
			&cli.DurationFlag{
				Name:  "wait-for",
				Usage: "Wait up to this long, then report unresolved artifacts as accepted",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Treat artifacts unresolved at the wait deadline as failures",
			},
			// Upload tuning
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Parallel chunk uploads (default: server-suggested)",
			},
			&cli.StringFlag{
				Name:  "chunk-size",
				Usage: "Chunk size override, e.g. 4MiB (default: server-preferred)",
			},
			&cli.StringFlag{
				Name:  "max-file-size",
				Usage: "Skip artifacts larger than this, e.g. 2GiB",
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Upload attempts per chunk before its artifacts fail",
			},
			&cli.BoolFlag{
				Name:  "no-dedup",
				Usage: "Skip dedup queries and upload every chunk",
			},
			// Output
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a batch report (msgpack) to this path",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the outcome summary",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Emit structured logs to stderr",
			},
			NoColorFlag,
		},
		Action: uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	url := firstOf(c.String("url"), cfg.Server.URL)
	token := firstOf(c.String("token"), cfg.Server.Token)
	org := firstOf(c.String("org"), cfg.Server.Org)
	project := firstOf(c.String("project"), cfg.Server.Project)
	if url == "" || org == "" || project == "" {
		return cli.Exit("server url, org and project are required (flags, env or config)", exitConfigError)
	}

	var artifacts []*types.Artifact
	if mf := c.String("manifest"); mf != "" {
		artifacts, err = loadManifest(mf)
	} else {
		artifacts, err = artifactsFromPaths(c.Args().Slice())
	}
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	opts, err := engineOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	meta := &types.BatchMeta{BatchID: uuid.NewString(), Org: org, Project: project}
	logger := log.NewLogger(meta)
	if !c.Bool("verbose") {
		logger = logger.WithOutput(io.Discard)
	}
	collector := metrics.NewCollector(meta.BatchID, meta.Org, meta.Project)

	t, err := transport.NewHTTP(transport.Config{
		BaseURL:   url,
		Token:     token,
		Timeout:   cfg.Server.Timeout.Duration,
		UserAgent: "sluice/" + types.Version,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer t.Close()

	progress := newProgressPrinter(os.Stderr, !c.Bool("quiet") && isTerminal(os.Stderr))
	opts.Observer = progress.observe

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	eng := engine.New(transport.NewClient(t, org, project), meta, opts, logger, collector)
	result, err := eng.UploadAndAssemble(ctx, artifacts)
	progress.finish()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cli.Exit("interrupted", exitTransport)
		}
		return cli.Exit(fmt.Sprintf("upload failed: %v", err), exitTransport)
	}

	if path := firstOf(c.String("report"), cfg.Report.Path); path != "" {
		if werr := report.Write(path, report.New(meta, result)); werr != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", werr)
		}
	}

	if !c.Bool("quiet") {
		printSummary(os.Stdout, result, c.Bool("no-color"))
	}
	if result.Failed() {
		return cli.Exit("", exitBatchFailed)
	}
	return cli.Exit("", exitSuccess)
}

// loadConfig loads --config if given, otherwise the default file from the
// working directory.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// engineOptions merges flags over config-file defaults.
func engineOptions(c *cli.Context, cfg *config.Config) (engine.Options, error) {
	opts := engine.Options{
		Wait:         c.Bool("wait") || cfg.Wait.Wait,
		WaitFor:      cfg.Wait.WaitFor.Duration,
		Strict:       c.Bool("strict") || cfg.Wait.Strict,
		Concurrency:  firstPositive(c.Int("concurrency"), cfg.Upload.Concurrency),
		ChunkSize:    cfg.Upload.ChunkSize.Bytes,
		MaxFileSize:  cfg.Upload.MaxFileSize.Bytes,
		MaxAttempts:  firstPositive(c.Int("max-attempts"), cfg.Upload.MaxAttempts),
		DisableDedup: c.Bool("no-dedup") || cfg.Upload.NoDedup,
		PollInterval: cfg.Wait.PollInterval.Duration,
	}
	if d := c.Duration("wait-for"); d > 0 {
		opts.WaitFor = d
	}

	if s := c.String("chunk-size"); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return opts, fmt.Errorf("invalid --chunk-size %q: %w", s, err)
		}
		opts.ChunkSize = int64(n)
	}
	if s := c.String("max-file-size"); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return opts, fmt.Errorf("invalid --max-file-size %q: %w", s, err)
		}
		opts.MaxFileSize = int64(n)
	}
	if opts.Wait && opts.WaitFor > 0 {
		return opts, fmt.Errorf("--wait and --wait-for are mutually exclusive")
	}
	return opts, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// isTerminal reports whether the file is a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

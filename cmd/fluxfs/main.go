package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/fluxfs/fluxfs/internal/logger"
	"github.com/fluxfs/fluxfs/pkg/config"
	"github.com/fluxfs/fluxfs/pkg/metrics"
	"github.com/fluxfs/fluxfs/pkg/source"
)

const usage = `fluxfs - URI resolution over local disk, S3 and the dx platform

Usage:
  fluxfs [flags] resolve <uri>...       print the identity of each source
  fluxfs [flags] list [-r] <uri>        list a directory source
  fluxfs [flags] localize <uri>...      print collision-free local paths
  fluxfs [flags] cat <uri>              stream a source's content to stdout

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fluxfs: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.ApplyLogging(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "fluxfs: %v\n", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The dx protocol needs a platform client from the hosting
	// application; the standalone CLI runs with local disk and S3.
	resolver, err := config.CreateResolver(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fluxfs: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("resolver cleanup failed: %v", err)
		}
	}()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var runErr error
	switch command {
	case "resolve":
		runErr = runResolve(ctx, resolver, args)
	case "list":
		runErr = runList(ctx, resolver, args)
	case "localize":
		runErr = runLocalize(ctx, cfg, resolver, args)
	case "cat":
		runErr = runCat(ctx, resolver, args)
	default:
		fmt.Fprintf(os.Stderr, "fluxfs: unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "fluxfs: %v\n", runErr)
		os.Exit(1)
	}
}

func runResolve(ctx context.Context, resolver *source.Resolver, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("resolve: at least one URI is required")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ADDRESS\tNAME\tFOLDER\tCONTAINER\tVERSION\tSIZE")

	for _, uri := range args {
		src, err := resolver.Resolve(ctx, uri)
		if err != nil {
			return err
		}
		size, err := src.Size(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			src.Address(), src.Name(), src.Folder(), src.Container(), src.Version(), size)
	}
	return nil
}

func runList(ctx context.Context, resolver *source.Resolver, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	recursive := fs.Bool("r", false, "List the full subtree")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("list: exactly one URI is required")
	}

	dir, err := resolver.ResolveDirectory(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	addressable, ok := dir.(source.Addressable)
	if !ok {
		return fmt.Errorf("list: %s does not support listing", dir.Address())
	}

	children, err := addressable.Listing(ctx, *recursive)
	if err != nil {
		return err
	}
	for _, c := range children {
		marker := ""
		if c.IsDirectory() {
			marker = "/"
		}
		fmt.Println(c.Address() + marker)
	}
	return nil
}

func runLocalize(ctx context.Context, cfg *config.Config, resolver *source.Resolver, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("localize: at least one URI is required")
	}

	srcs := make([]source.Source, len(args))
	for i, uri := range args {
		src, err := resolver.Resolve(ctx, uri)
		if err != nil {
			return err
		}
		srcs[i] = src
	}

	localizer := config.CreateLocalizer(&cfg.Localize)
	paths, err := localizer.LocalPaths(srcs)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	for i, src := range srcs {
		fmt.Fprintf(w, "%s\t%s\n", src.Address(), paths[i])
	}
	return nil
}

func runCat(ctx context.Context, resolver *source.Resolver, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("cat: exactly one URI is required")
	}

	src, err := resolver.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	readable, ok := src.(source.Readable)
	if !ok {
		return fmt.Errorf("cat: %s is not readable", src.Address())
	}

	r, err := readable.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	_, err = io.Copy(os.Stdout, r)
	return err
}

// Package cli implements the satellite command line.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"satellite/client"
	appconfig "satellite/config"
	"satellite/logger"
	"satellite/writer"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError is a missing or conflicting option. It is reported on stderr
// with exit code 2.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...interface{}) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

type commonFlags struct {
	test       bool
	url        string
	pretty     bool
	configPath string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.test, "test", false, "Call the test API")
	fs.StringVar(&c.url, "url", "", "Call an API at this URL")
	fs.BoolVar(&c.pretty, "pretty", false, "Prettify the JSON result")
	fs.StringVar(&c.configPath, "config", "", "Path to a YAML configuration file")
}

type command interface {
	description() string
	register(fs *flag.FlagSet)
	validate(fs *flag.FlagSet) error
	run(r *runner) error
}

// runner carries what a command needs once its flags are parsed.
type runner struct {
	ctx     context.Context
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	common  commonFlags
	cfg     *appconfig.Config
	client  *client.Client
	printer *writer.ResultPrinter
	log     *logger.Log
}

func commands() map[string]command {
	return map[string]command{
		"create-order":         &createOrderCmd{},
		"cancel-order":         &cancelOrderCmd{},
		"get-order":            &getOrderCmd{},
		"bump-order":           &bumpOrderCmd{},
		"queued-orders":        &queuedOrdersCmd{},
		"pending-orders":       &listBeforeCmd{pending: true},
		"sent-orders":          &listBeforeCmd{},
		"msg":                  &messageCmd{},
		"info":                 &infoCmd{},
		"stream-transmissions": &streamCmd{},
	}
}

// Run executes the command named by args[0] and returns the process exit
// code. Results and error summaries go to stdout, usage problems to stderr.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmds := commands()
	if len(args) == 0 {
		printUsage(stderr, cmds)
		return exitUsage
	}

	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(stdout, cmds)
		return exitOK
	}
	cmd, ok := cmds[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		printUsage(stderr, cmds)
		return exitUsage
	}

	r := &runner{
		ctx:    ctx,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		log:    logger.GetLogger(),
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "%s: %s\n\nOptions:\n", name, cmd.description())
		fs.PrintDefaults()
	}
	r.common.register(fs)
	cmd.register(fs)

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return exitUsage
	}
	if err := cmd.validate(fs); err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if err := r.setup(); err != nil {
		report(stdout, err)
		return exitFailure
	}

	if err := cmd.run(r); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(stderr, uerr)
			return exitUsage
		}
		r.log.WithComponent("cli").WithError(err).WithField("command", name).Debug("command failed")
		report(stdout, err)
		return exitFailure
	}
	return exitOK
}

// setup loads configuration, applies logging settings and builds the client.
func (r *runner) setup() error {
	cfg, err := appconfig.LoadConfig(r.common.configPath)
	if err != nil {
		return err
	}
	r.cfg = cfg

	if err := r.log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	r.log.WithComponent("cli").WithFields(logger.Fields{
		"service": cfg.Satellite.Name,
		"version": cfg.Satellite.Version,
	}).Info("starting satellite")

	c, err := client.NewFromConfig(cfg, r.common.test, r.common.url)
	if err != nil {
		return err
	}
	r.client = c

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(r.ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	r.printer = writer.NewResultPrinter(r.stdout, r.common.pretty)
	return nil
}

// report renders err as a human readable summary.
func report(out io.Writer, err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintln(out, "The API threw an exception:")
		fmt.Fprintf(out, "Request URL: %s.\n", apiErr.URL)
		fmt.Fprintf(out, "HTTP status code: %d.\n", apiErr.StatusCode)
		if msgs := apiErr.Messages(); len(msgs) > 0 {
			fmt.Fprintf(out, "Error messages: %s\n", strings.Join(msgs, "\n"))
		}
		return
	}
	fmt.Fprintf(out, "An exception occurred: %s\n", err)
}

// isSet reports whether the named flag was given on the command line.
func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func printUsage(out io.Writer, cmds map[string]command) {
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "Usage: satellite <command> [options]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, name := range names {
		fmt.Fprintf(out, "  %-22s %s\n", name, cmds[name].description())
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Common options: --test, --url <url>, --pretty, --config <file>")
}

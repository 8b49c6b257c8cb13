package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanofslack/zonesync/internal/config"
	_ "github.com/evanofslack/zonesync/internal/provider/cloudflare"
	_ "github.com/evanofslack/zonesync/internal/provider/rfc2136"
	"github.com/evanofslack/zonesync/internal/reconcile"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	zones      []string
	quiet      bool
	debug      bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "zonesync",
		Short: "Detect and repair drift between zone files and live DNS",
		Long: `zonesync compares the records in local zone files with what the
authoritative nameservers serve, and pushes the difference to a DNS provider
when asked to. Destructive plans are held back by safety thresholds.`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var defaultZones []string
	if env := os.Getenv("ZONESYNC_ZONE"); env != "" {
		defaultZones = strings.Split(env, ",")
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the config file")
	cmd.PersistentFlags().StringSliceVarP(&opts.zones, "zone", "z", defaultZones, "Zone to process, repeatable (env ZONESYNC_ZONE) (default all zones)")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print summaries and warnings only (env QUIET)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Print per-value detail and debug logs (env DEBUG)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "Abort outstanding nameserver queries after this long (0 disables)")

	cmd.PersistentPreRunE = func(c *cobra.Command, _ []string) error {
		// env only applies when the flag was not given
		if !c.Flags().Changed("debug") && envBool("DEBUG") {
			opts.debug = true
		}
		if !c.Flags().Changed("quiet") && envBool("QUIET") {
			opts.quiet = true
		}
		if opts.debug && opts.quiet {
			return errors.New("--debug and --quiet are mutually exclusive")
		}
		return nil
	}

	cmd.AddCommand(newCmdVersion())
	cmd.AddCommand(newCmdValidate(opts))
	cmd.AddCommand(newCmdSync(opts))
	cmd.AddCommand(newCmdDrift(opts))
	cmd.AddCommand(newCmdReport(opts))
	cmd.AddCommand(newCmdHistory(opts))
	return cmd
}

func envBool(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// any other non-empty value counts as set
		return true
	}
	return b
}

// ExitCodeError carries the process exit code of a finished command.
type ExitCodeError struct {
	Code int
}

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// exitFor turns an outcome into the error returned from RunE.
func exitFor(o reconcile.Outcome) error {
	if o == reconcile.OutcomeOK {
		return nil
	}
	return ExitCodeError{Code: int(o)}
}

// exitCode maps the error returned by the root command to a process exit
// code, printing it to w unless it only carries the code.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exit ExitCodeError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var missing *config.MissingCredentialsError
	if errors.As(err, &missing) {
		fmt.Fprintln(w, missing.Error())
		return int(reconcile.OutcomeError)
	}
	fmt.Fprintf(w, "Error: %s\n", err)
	return int(reconcile.OutcomeOf(err))
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	err := root.Execute()
	os.Exit(exitCode(os.Stderr, err))
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	backendURL string
	bundlePath string
	noAudio    bool
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "ivrphone",
		Short: "Dial the IVR demo phone tree from a terminal",
		Long: `ivrphone runs one simulated call in the terminal.

Type a single key (0-9, * or #) to press it, or any other text to say it.
Commands: /start /end /reset /mute /unmute /quit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.backendURL, "backend-url", "", "backend API base URL (default: in-process backend with mock replies)")
	cmd.Flags().StringVar(&opts.bundlePath, "bundle", "", "YAML language bundle file (default: built-in bundles)")
	cmd.Flags().BoolVar(&opts.noAudio, "no-audio", false, "start with tones and speech muted")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	return cmd
}

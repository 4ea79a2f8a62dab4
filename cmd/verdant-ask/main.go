// Command verdant-ask runs one chat completion for a stored conversation and
// reports it on stdout as newline-delimited JSON events. Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/config"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/history"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/logger"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	var opts options
	code := 0

	root := &cobra.Command{
		Use:           "verdant-ask",
		Short:         "Ask the upstream model with the conversation's context",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Logging.Service = "verdant-ask"
			log, closer := logger.NewWithWriter(cfg.Logging, os.Stderr)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := &asker{upstream: cfg.Upstream, timeout: cfg.Server.RequestTimeout, out: os.Stdout, log: log}
			code = a.run(ctx, opts)
			return nil
		},
	}
	root.SetOut(os.Stderr)
	root.SetErr(os.Stderr)

	f := root.Flags()
	f.StringVar(&opts.message, "message", "", "latest user message")
	f.StringVar(&opts.conversationPath, "conversation-json-path", "", "path to the conversation bundle")
	f.StringVar(&opts.conversationID, "conversation-id", "", "conversation id (default: bundle file name)")
	f.StringVar(&opts.model, "model", "", "model override (default: the conversation model, then DEDALUS_MODEL)")
	f.IntVar(&opts.maxTokens, "max-tokens", 0, "max_tokens cap for this completion")
	f.StringVar(&opts.availableModels, "available-models", "", "comma-separated models allowed for this run")
	f.IntVar(&opts.historyWindow, "history-window-messages", history.DefaultWindow, "recent messages sent before summarizing older context")
	f.IntVar(&opts.historySummaryMax, "history-summary-max-chars", history.DefaultSummaryMax, "character budget of the older-context summary")
	f.BoolVar(&opts.stream, "stream", true, "stream tokens as they arrive")
	_ = root.MarkFlagRequired("message")
	_ = root.MarkFlagRequired("conversation-json-path")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "verdant-ask:", err)
		return 1
	}
	return code
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/leadflow/internal/notify"
	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/session"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func newSimulateCmd() *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Chat with an in-process engine using template replies",
		Long: `Each input line is sent as a customer message. Replies, UI directives
and phase changes are printed as they happen. The hand-off record is
printed when the conversation closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scorer, err := scorerFromFlags(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			engine := orchestrator.New(orchestrator.Config{
				Store:  session.NewMemoryStore(),
				Scorer: scorer,
				Notifier: notify.NotifierFunc(func(_ context.Context, rec notify.Record) error {
					b, err := json.MarshalIndent(rec, "", "  ")
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "--- hand-off ---\n%s\n", b)
					return nil
				}),
				Logger: logging.NewWithWriter(cmd.ErrOrStderr(), logLevel),
			})
			return simulate(cmd.Context(), engine, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "error", "engine log level")
	return cmd
}

func simulate(ctx context.Context, engine *orchestrator.Engine, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID := "sim-" + uuid.NewString()
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		res, err := engine.Handle(ctx, orchestrator.Inbound{SessionID: sessionID, Text: text})
		if err != nil {
			return err
		}
		if res.Inert {
			fmt.Fprintln(out, "(conversation closed)")
			return nil
		}
		fmt.Fprintf(out, "agent> %s\n", res.ReplyText)
		for _, d := range res.Directives {
			b, err := json.Marshal(d)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  ui> %s\n", b)
		}
		fmt.Fprintf(out, "  [phase=%s ui=%s status=%s]\n", res.Phase, res.UIState, res.Status)
		if res.Status != session.StatusActive {
			return nil
		}
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/leadflow/internal/orchestrator"
	"github.com/wolfman30/leadflow/internal/qualification"
	"github.com/wolfman30/leadflow/internal/session"
)

func newScoreCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score <transcript>",
		Short: "Print the BANT breakdown for a transcript",
		Long: `Score a transcript file holding one customer message per line.
Use "-" to read from stdin. Blank lines are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scorer, err := scorerFromFlags(cmd)
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open transcript: %w", err)
				}
				defer f.Close()
				in = f
			}
			st, err := stateFromTranscript(in)
			if err != nil {
				return err
			}
			q := scorer.Score(st)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			return printBreakdown(cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the qualification as JSON")
	return cmd
}

func scorerFromFlags(cmd *cobra.Command) (*qualification.Scorer, error) {
	path, _ := cmd.Flags().GetString("scoring-config")
	if path == "" {
		return qualification.NewScorer(qualification.DefaultMultipliers()), nil
	}
	m, err := qualification.LoadMultipliersFile(path)
	if err != nil {
		return nil, err
	}
	return qualification.NewScorer(m), nil
}

// stateFromTranscript replays each line as a user message and merges the
// facts extracted from it.
func stateFromTranscript(r io.Reader) (session.State, error) {
	now := time.Now()
	st := session.New("leadctl", now)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		st.Messages = append(st.Messages, session.Message{Speaker: session.SpeakerUser, Text: line, Timestamp: now})
		st.CustomerInfo = session.MergeCustomerInfo(st.CustomerInfo, orchestrator.Extract(line))
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("read transcript: %w", err)
	}
	if len(st.Messages) == 0 {
		return st, fmt.Errorf("transcript is empty")
	}
	return st, nil
}

func printBreakdown(w io.Writer, q session.Qualification) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "budget\t%d\t%s\n", q.Budget.Score, q.Budget.Status)
	fmt.Fprintf(tw, "authority\t%d\t%s\n", q.Authority.Score, q.Authority.Role)
	fmt.Fprintf(tw, "need\t%d\t%d item(s)\n", q.Need.Score, q.Need.Items)
	fmt.Fprintf(tw, "timeline\t%d\t%s\n", q.Timeline.Score, q.Timeline.Status)
	fmt.Fprintf(tw, "base\t%d\t\n", q.BaseScore)
	fmt.Fprintf(tw, "multiplier\t%.2f\t\n", q.IndustryMultiplier)
	fmt.Fprintf(tw, "total\t%d\t%s\n", q.TotalScore, q.Tier)
	fmt.Fprintf(tw, "next action\t%s\t\n", q.NextAction)
	return tw.Flush()
}

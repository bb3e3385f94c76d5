package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/onchain-voice-lab/internal/logging"
)

const stepSeparator = "-------------------"

// Runner is implemented by *Agent.
type Runner interface {
	Run(ctx context.Context, threadID, input string, onStep func(Step)) (string, error)
}

// PrintSteps writes every step followed by a separator line.
func PrintSteps(out io.Writer) func(Step) {
	return func(s Step) {
		fmt.Fprintln(out, s.Content)
		fmt.Fprintln(out, stepSeparator)
	}
}

// RunChat reads prompts from in until "exit", EOF or ctx ends.
func RunChat(ctx context.Context, in io.Reader, out io.Writer, r Runner, threadID string) error {
	fmt.Fprintln(out, "Starting chat mode... Type 'exit' to end.")
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "\nPrompt: ")
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}
		if strings.EqualFold(line, "exit") {
			return nil
		}
		if line == "" {
			continue
		}
		if _, err := r.Run(ctx, threadID, line, PrintSteps(out)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Errorw("chat request failed", "error", err)
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// RunAutonomous sends thought to the agent every interval until ctx ends.
func RunAutonomous(ctx context.Context, out io.Writer, r Runner, threadID, thought string, interval time.Duration) error {
	fmt.Fprintln(out, "Starting autonomous mode...")
	for {
		if _, err := r.Run(ctx, threadID, thought, PrintSteps(out)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Errorw("autonomous step failed", "error", err)
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

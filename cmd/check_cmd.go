package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/verify"
)

type checkOptions struct {
	userID      string
	file        string
	jsonOutput  bool
	csvOutput   bool
	pairTimeout time.Duration
}

func checkCmd() *cobra.Command {
	var opts checkOptions
	cmd := &cobra.Command{
		Use:   "check [numbers...]",
		Short: "Check numbers locally through a linked session (pairs on first use)",
		Long: "Runs a check in-process without a gateway. On first use the pairing QR code\n" +
			"is printed to the terminal; scan it from the phone's linked devices screen.\n" +
			"Numbers come from arguments and/or --file (one per line, '-' for stdin).",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runCheck(opts, args); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", formatError(err))
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "cli", "session user id")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read numbers from file ('-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&opts.csvOutput, "csv", false, "output as CSV")
	cmd.Flags().DurationVar(&opts.pairTimeout, "pair-timeout", 2*time.Minute, "how long to wait for the session to become ready")
	return cmd
}

func runCheck(opts checkOptions, args []string) error {
	numbers, err := collectNumbers(args, opts.file)
	if err != nil {
		return err
	}
	if len(numbers) == 0 {
		return errors.New("no numbers given")
	}

	cfg := loadConfig()
	setupLogging(cfg.Log)

	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.close(sessionShutdownTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := waitReady(ctx, st.sessions, opts.userID, opts.pairTimeout); err != nil {
		return err
	}

	updates := make(chan verify.Update, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range updates {
			if !u.Done {
				fmt.Fprintf(os.Stderr, "\rchecked %d/%d", u.Completed, u.Total)
			}
		}
		fmt.Fprintln(os.Stderr)
	}()

	results, err := st.engine.Check(ctx, opts.userID, numbers, updates)
	wg.Wait()
	if err != nil {
		return err
	}

	switch {
	case opts.jsonOutput:
		data, _ := json.MarshalIndent(map[string]any{
			"summary": verify.Summarize(results),
			"results": results,
		}, "", "  ")
		fmt.Println(string(data))
		return nil
	case opts.csvOutput:
		return (&verify.Run{Results: results}).WriteCSV(os.Stdout)
	default:
		printResults(os.Stdout, results)
		return nil
	}
}

// waitReady brings userID's session up, printing pairing codes as they arrive.
func waitReady(ctx context.Context, sessions *session.Manager, userID string, timeout time.Duration) error {
	ready := make(chan struct{})
	failed := make(chan string, 1)
	var once sync.Once

	sink := session.SinkFunc(func(ev session.Event) {
		switch ev.Type {
		case session.EventPairingChallenge:
			printQR(os.Stderr, ev.Payload)
		case session.EventReady:
			once.Do(func() { close(ready) })
		case session.EventStatusChanged:
			if ev.State == session.StateError {
				select {
				case failed <- ev.Message:
				default:
				}
			}
		case session.EventDisconnected:
			if ev.ReasonCode != 0 {
				fmt.Fprintf(os.Stderr, "Disconnected (%d): %s\n", ev.ReasonCode, ev.Message)
			}
		}
	})

	if err := sessions.EnsureReady(ctx, userID, sink); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case msg := <-failed:
		return errors.New(msg)
	case <-timer.C:
		return fmt.Errorf("session for %q not ready after %s", userID, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printQR(w io.Writer, code string) {
	q, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		fmt.Fprintf(w, "Pairing code: %s\n", code)
		return
	}
	fmt.Fprintln(w, "Scan this code from WhatsApp > Linked devices:")
	fmt.Fprintln(w, q.ToSmallString(false))
}

// collectNumbers merges arguments with the lines of file. Blank lines and
// lines starting with # are skipped; commas separate numbers on one line.
func collectNumbers(args []string, file string) ([]string, error) {
	var out []string
	add := func(line string) {
		for _, part := range strings.Split(line, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	for _, a := range args {
		add(a)
	}
	if file == "" {
		return out, nil
	}

	var r io.Reader = os.Stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		add(line)
	}
	return out, sc.Err()
}

func printResults(w io.Writer, results []verify.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "INPUT\tCANONICAL\tSTATUS\tREGISTERED\tCARRIER\tNOTE\n")
	for _, r := range results {
		registered := "-"
		if r.Registered != nil {
			registered = fmt.Sprintf("%t", *r.Registered)
		}
		note := r.Error
		if r.FromCache {
			note = "cached"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateStr(r.Input, 24), r.Canonical, r.Status, registered, r.Carrier, note)
	}
	tw.Flush()

	s := verify.Summarize(results)
	fmt.Fprintf(w, "\n%d checked: %d registered, %d not registered, %d invalid, %d errors (%d from cache)\n",
		s.Total, s.Registered, s.NotRegistered, s.Invalid, s.Errors, s.FromCache)
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

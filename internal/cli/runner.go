// Package cli implements the fillmgr command line over the daemon's v1 API.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fillmgr/fillmgr/internal/client"
)

type Runner struct {
	client *client.Client
	out    io.Writer
	errOut io.Writer
}

func NewRunner(socketPath string, out, errOut io.Writer) *Runner {
	return NewRunnerWithClient(client.New(socketPath), out, errOut)
}

func NewRunnerWithClient(c *client.Client, out, errOut io.Writer) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Runner{client: c, out: out, errOut: errOut}
}

func (r *Runner) Run(ctx context.Context, args []string) int {
	socketPath, rest, err := parseGlobalArgs(args)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	if socketPath != "" {
		r.client = client.New(socketPath)
	}
	if len(rest) == 0 {
		r.printUsage()
		return 2
	}
	switch rest[0] {
	case "status":
		return r.runStatus(ctx, rest[1:])
	case "sessions":
		return r.runSessions(ctx, rest[1:])
	case "history":
		return r.runHistory(ctx, rest[1:])
	case "enable":
		return r.runSetEnabled(ctx, true)
	case "disable":
		return r.runSetEnabled(ctx, false)
	default:
		_, _ = fmt.Fprintf(r.errOut, "unknown command: %s\n", rest[0])
		r.printUsage()
		return 2
	}
}

func (r *Runner) runStatus(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.Health(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 1
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	_, _ = fmt.Fprintf(r.out, "status: %s\nprovider: %s\nenabled: %v\nsessions: %d\n",
		resp.Status, resp.ProviderID, resp.Enabled, resp.Sessions)
	return 0
}

func (r *Runner) runSessions(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.Sessions(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 1
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "TOKEN\tOWNER\tACTIVE\tFIELDS\tFILLED\tSAVE_PENDING")
	for _, s := range resp.Sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\t%v\n",
			s.Token, s.OwnerLabel, s.ActiveField, s.FieldCount, s.Filled, s.SavePending)
	}
	_ = tw.Flush()
	return 0
}

func (r *Runner) runHistory(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 0, "max entries, newest first")
	jsonOut := fs.Bool("json", false, "output JSON")
	if err := fs.Parse(args); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 2
	}
	resp, err := r.client.History(ctx, *limit)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 1
	}
	if *jsonOut {
		return r.printJSON(resp)
	}
	for _, e := range resp.Entries {
		_, _ = fmt.Fprintf(r.out, "%s s=%s u=%d a=%s i=%s b=%s hc=%v f=%s\n",
			e.At.Format("2006-01-02T15:04:05Z07:00"),
			e.Token, e.UserID, e.ProviderID, e.FieldID, e.Bounds, e.HasCallback, e.Flags)
	}
	return 0
}

func (r *Runner) runSetEnabled(ctx context.Context, enabled bool) int {
	resp, err := r.client.SetEnabled(ctx, enabled)
	if err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(r.out, "enabled: %v\n", resp.Enabled)
	return 0
}

func (r *Runner) printJSON(payload any) int {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		_, _ = fmt.Fprintf(r.errOut, "error: %v\n", err)
		return 1
	}
	return 0
}

func (r *Runner) printUsage() {
	_, _ = fmt.Fprintln(r.errOut, "usage: fillmgr [--socket PATH] <status|sessions|history|enable|disable>")
}

func parseGlobalArgs(args []string) (string, []string, error) {
	socketPath := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--socket" || arg == "-socket":
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--socket requires a value")
			}
			i++
			socketPath = args[i]
		case strings.HasPrefix(arg, "--socket="):
			socketPath = strings.TrimPrefix(arg, "--socket=")
		default:
			rest = append(rest, arg)
		}
	}
	return socketPath, rest, nil
}

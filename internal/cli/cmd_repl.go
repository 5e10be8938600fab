package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"youwin-client/internal/bootstrap"
	"youwin-client/internal/entity"
	"youwin-client/internal/service"
	"youwin-client/pkg/session"

	"github.com/spf13/cobra"
)

type replAction int

const (
	actionAsk replAction = iota
	actionSubmit
	actionClear
	actionHistory
	actionStatus
	actionQuit
	actionNone
	actionUnknown
)

type replCommand struct {
	action replAction
	arg    string
}

// parseReplLine maps one input line to a command. Lines that are not
// slash commands are questions.
func parseReplLine(line string) replCommand {
	line = strings.TrimSpace(line)
	if line == "" {
		return replCommand{action: actionNone}
	}
	if !strings.HasPrefix(line, "/") {
		return replCommand{action: actionAsk, arg: line}
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/submit":
		return replCommand{action: actionSubmit, arg: arg}
	case "/clear":
		return replCommand{action: actionClear}
	case "/history":
		return replCommand{action: actionHistory}
	case "/status":
		return replCommand{action: actionStatus}
	case "/quit", "/exit":
		return replCommand{action: actionQuit}
	default:
		return replCommand{action: actionUnknown, arg: name}
	}
}

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session",
		Long:  "Commands: /submit <url>, /clear, /history, /status, /quit.\nAny other line is a question about the current video.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), func(ctx context.Context, c *bootstrap.Container) error {
				out := &lockedWriter{w: cmd.OutOrStdout()}

				subCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				if evs, err := c.Publisher.Subscribe(subCtx); err == nil {
					go func() {
						for ev := range evs {
							renderEvent(out, ev)
						}
					}()
				}

				if v, err := c.Session.View(ctx); err == nil && v.Reference != "" {
					dimColor.Fprintf(out, "Restored %s\n", v.Reference)
				}
				return runRepl(ctx, c.Session, cmd.InOrStdin(), out)
			})
		},
	}
}

func runRepl(ctx context.Context, svc service.ISessionService, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		rc := parseReplLine(scanner.Text())
		switch rc.action {
		case actionNone:
		case actionQuit:
			return nil
		case actionUnknown:
			errorColor.Fprintf(out, "unknown command %s\n", rc.arg)
		case actionStatus:
			v, err := svc.View(ctx)
			if err != nil {
				return err
			}
			renderStatus(out, v)
		case actionHistory:
			v, err := svc.View(ctx)
			if err != nil {
				return err
			}
			renderHistory(out, v.History)
		case actionClear:
			if err := svc.ClearCache(ctx); err != nil {
				errorColor.Fprintf(out, "Failed to clear cache: %v\n", err)
			}
		case actionSubmit:
			if _, err := svc.Submit(ctx, rc.arg); err != nil && !errors.Is(err, session.ErrEmptyReference) {
				errorColor.Fprintf(out, "%v\n", err)
			}
			v, err := svc.Await(ctx, service.Settled)
			if err != nil {
				return err
			}
			renderView(out, v)
		case actionAsk:
			if err := replAsk(ctx, svc, rc.arg, out); err != nil {
				return err
			}
		}
	}
}

func replAsk(ctx context.Context, svc service.ISessionService, question string, out io.Writer) error {
	before, err := svc.View(ctx)
	if err != nil {
		return err
	}
	if err := svc.Ask(ctx, question); err != nil {
		if errors.Is(err, session.ErrChatNotReady) {
			errorColor.Fprintln(out, "Submit a video first.")
			return nil
		}
		errorColor.Fprintf(out, "%v\n", err)
		return nil
	}

	v, err := svc.Await(ctx, service.AnswerAfter(before))
	if err != nil {
		return err
	}
	if last := v.History[len(v.History)-1]; last.Origin == entity.OriginAssistant {
		renderMessage(out, last)
		return nil
	}
	if v.Error != "" {
		errorColor.Fprintf(out, "%s\n", v.Error)
		return nil
	}
	dimColor.Fprintln(out, "No answer.")
	return nil
}

// ABOUTME: chat command: one-shot prompts or a line-oriented REPL against a nanobot agent
// ABOUTME: Streams reply text as it arrives and renders the finished reply as markdown on a terminal

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/mauromedda/nanobot-go/internal/attach"
	"github.com/mauromedda/nanobot-go/internal/chat"
	"github.com/mauromedda/nanobot-go/internal/mcp"
	"github.com/mauromedda/nanobot-go/pkg/sdk"
)

type chatOptions struct {
	thread  string
	agent   string
	attach  []string
	upload  bool
	newChat bool
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Send a prompt, or start an interactive chat when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.connected(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := co.prepare(ctx, app); err != nil {
				return err
			}
			r := newRenderer(os.Stdout, opts.plain)

			if len(args) > 0 {
				atts, suffix, err := co.attachments(ctx, app.Client())
				if err != nil {
					return err
				}
				return ask(ctx, app, r, strings.Join(args, " ")+suffix, atts)
			}
			return repl(ctx, app, r, os.Stdin, co)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&co.thread, "thread", "t", "", "Continue this conversation")
	f.StringVarP(&co.agent, "agent", "a", "", "Route messages to this agent (id or name)")
	f.StringArrayVarP(&co.attach, "attach", "f", nil, "Attach a file (repeatable)")
	f.BoolVar(&co.upload, "upload", false, "Upload non-image attachments as resources and reference their URI")
	f.BoolVarP(&co.newChat, "new", "n", false, "Start a new conversation")
	cmd.MarkFlagsMutuallyExclusive("thread", "new")
	return cmd
}

// prepare selects the agent and the conversation to continue.
func (co *chatOptions) prepare(ctx context.Context, app *sdk.App) error {
	store := app.Store()
	if co.agent != "" {
		id, ok := findAgent(store.Agents(), co.agent)
		if !ok {
			return fmt.Errorf("unknown agent %q", co.agent)
		}
		store.SelectAgent(id)
	}

	switch {
	case co.newChat:
		store.CreateThread()
	case co.thread != "":
		store.SelectThread(ctx, co.thread)
	}
	return nil
}

func findAgent(agents []mcp.Agent, idOrName string) (string, bool) {
	for _, a := range agents {
		if a.ID == idOrName || strings.EqualFold(a.Name, idOrName) {
			return a.ID, true
		}
	}
	return "", false
}

// attachments loads the --attach files. Images travel inline; other files
// travel inline too unless --upload is set, in which case their resource
// URIs are returned as a prompt suffix.
func (co *chatOptions) attachments(ctx context.Context, rc attach.ResourceCreator) ([]mcp.Attachment, string, error) {
	var (
		atts   []mcp.Attachment
		suffix strings.Builder
	)
	for _, path := range co.attach {
		f, err := attach.Load(path)
		if err != nil {
			return nil, "", err
		}
		if co.upload && !f.IsImage() {
			uri, err := attach.Upload(ctx, rc, f)
			if err != nil {
				return nil, "", err
			}
			fmt.Fprintf(&suffix, "\n\nAttached: %s", uri)
			continue
		}
		atts = append(atts, f.Attachment())
	}
	return atts, suffix.String(), nil
}

// ask sends one prompt and prints the reply.
func ask(ctx context.Context, app *sdk.App, r *renderer, text string, atts []mcp.Attachment) error {
	p := &replyPrinter{out: r.out, live: !r.rich}
	if r.rich {
		r.printf("%s\n", r.style(dimStyle, "thinking..."))
	}
	unsub := app.OnChange(func(c chat.Change) {
		if c.Kind == chat.ChangeMessages {
			p.update(app.Store().Messages())
		}
	})
	msg, err := app.Prompt(ctx, text, atts)
	unsub()
	if err != nil {
		return err
	}

	if r.rich {
		r.message(msg)
		return nil
	}
	p.finish(msg)
	if msg.Status == chat.StatusError {
		return errors.New(strings.TrimPrefix(msg.Text(), "Error: "))
	}
	return nil
}

// repl reads prompts line by line until EOF or /quit.
func repl(ctx context.Context, app *sdk.App, r *renderer, in io.Reader, co *chatOptions) error {
	store := app.Store()
	if id := store.CurrentThreadID(); id != "" {
		for _, m := range store.Messages() {
			r.message(m)
		}
	}
	fmt.Fprintln(os.Stderr, "type a message, /new for a new conversation, /quit to exit")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/new":
			store.CreateThread()
			continue
		}

		atts, suffix, err := co.attachments(ctx, app.Client())
		if err != nil {
			return err
		}
		co.attach = nil // attachments go with the first message only

		if err := ask(ctx, app, r, line+suffix, atts); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "%s\n", r.style(errorStyle, err.Error()))
		}
	}
}

// replyPrinter writes the growing text of the streaming assistant message.
type replyPrinter struct {
	out  io.Writer
	live bool

	mu        sync.Mutex
	messageID string
	printed   int
}

func (p *replyPrinter) update(msgs []chat.Message) {
	if !p.live || len(msgs) == 0 {
		return
	}
	m := msgs[len(msgs)-1]
	if m.Role != chat.RoleAssistant || m.Status == chat.StatusError {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if m.ID != p.messageID {
		p.messageID = m.ID
		p.printed = 0
	}
	text := m.Text()
	if len(text) > p.printed {
		fmt.Fprint(p.out, text[p.printed:])
		p.printed = len(text)
	}
}

// finish prints whatever the live updates missed and ends the line.
func (p *replyPrinter) finish(m chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Status == chat.StatusError {
		if p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		return
	}
	text := m.Text()
	if m.ID != p.messageID {
		p.printed = 0
	}
	if len(text) > p.printed {
		fmt.Fprint(p.out, text[p.printed:])
	}
	fmt.Fprintln(p.out)
	p.messageID = ""
	p.printed = 0
}

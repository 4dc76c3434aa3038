// ABOUTME: Conversation catalog commands: agents, threads (list/search/delete), history
// ABOUTME: Backed by the chat store so listing, search, and deletion match the interactive client

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mauromedda/nanobot-go/internal/chat"
	"github.com/mauromedda/nanobot-go/internal/export"
)

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agents a message can be routed to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.connected(ctx)
			if err != nil {
				return err
			}
			store := app.Store()
			current := store.CurrentAgentID()

			rows := [][]string{}
			for _, a := range store.Agents() {
				mark := ""
				if a.ID == current {
					mark = "*"
				}
				rows = append(rows, []string{mark, a.ID, a.Name, a.Model, a.Description})
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stdout, "no agents")
				return nil
			}
			newRenderer(os.Stdout, opts.plain).table([]string{"", "ID", "NAME", "MODEL", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

func newThreadsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List, search, or delete conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.connected(ctx)
			if err != nil {
				return err
			}
			printThreads(newRenderer(os.Stdout, opts.plain), app.Store().Threads(), time.Now())
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "search <query>",
			Short: "Fuzzy-search conversation titles",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()

				app, err := opts.connected(ctx)
				if err != nil {
					return err
				}
				found := app.Store().SearchThreads(strings.Join(args, " "))
				printThreads(newRenderer(os.Stdout, opts.plain), found, time.Now())
				return nil
			},
		},
		&cobra.Command{
			Use:     "delete <thread-id>...",
			Aliases: []string{"rm"},
			Short:   "Delete conversations on the server",
			Args:    cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := opts.context(cmd)
				defer cancel()

				app, err := opts.session(ctx)
				if err != nil {
					return err
				}
				var failed int
				for _, id := range args {
					if err := app.Store().DeleteThread(ctx, id); err != nil {
						fmt.Fprintf(os.Stderr, "%v\n", err)
						failed++
						continue
					}
					fmt.Fprintf(os.Stdout, "deleted %s\n", id)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d deletions failed", failed, len(args))
				}
				return nil
			},
		},
	)
	return cmd
}

func printThreads(r *renderer, threads []chat.Thread, now time.Time) {
	if len(threads) == 0 {
		r.printf("no conversations\n")
		return
	}
	rows := make([][]string, 0, len(threads))
	for _, t := range threads {
		rows = append(rows, []string{t.ID, relativeTime(t.UpdatedAt, now), t.Title})
	}
	r.table([]string{"ID", "UPDATED", "TITLE"}, rows)
}

// relativeTime formats t as a coarse age relative to now.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "history [thread-id]",
		Short: "Print the messages of a conversation (default: most recent)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.connected(ctx)
			if err != nil {
				return err
			}
			store := app.Store()

			var threadID string
			if len(args) == 1 {
				threadID = args[0]
			} else if threads := store.Threads(); len(threads) > 0 {
				threadID = threads[0].ID
			} else {
				return fmt.Errorf("no conversations")
			}

			store.SelectThread(ctx, threadID)
			msgs := store.Messages()
			if format != "" || output != "" {
				return exportHistory(store, threadID, msgs, format, output)
			}

			r := newRenderer(os.Stdout, opts.plain)
			if len(msgs) == 0 {
				r.printf("no messages in %s\n", threadID)
				return nil
			}
			for _, m := range msgs {
				r.message(m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Export as markdown or html instead of printing")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the export to this file (format from extension when --format is unset)")
	return cmd
}

func exportHistory(store *chat.Store, threadID string, msgs []chat.Message, format, output string) error {
	if format == "" {
		format = "markdown"
		if strings.EqualFold(filepath.Ext(output), ".html") {
			format = "html"
		}
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}

	title := threadID
	if t, ok := store.Thread(threadID); ok {
		title = t.Title
	}

	if output == "" {
		return export.Write(os.Stdout, f, title, msgs)
	}
	file, err := os.Create(output)
	if err != nil {
		return err
	}
	if err := export.Write(file, f, title, msgs); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

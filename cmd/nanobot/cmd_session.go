// ABOUTME: Session commands: connect, disconnect, status, server URL, and effective config
// ABOUTME: status probes tools, resources, and prompts concurrently with errgroup

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mauromedda/nanobot-go/internal/config"
	"github.com/mauromedda/nanobot-go/internal/mcp"
)

func newConnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open a session and store its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.newApp()
			if err != nil {
				return err
			}
			info, err := app.Client().Connect(ctx)
			if err != nil {
				return err
			}
			r := newRenderer(os.Stdout, opts.plain)
			r.printf("connected to %s\n", app.ServerURL())
			r.printf("server:   %s %s\n", info.ServerInfo.Name, info.ServerInfo.Version)
			r.printf("protocol: %s\n", info.ProtocolVersion)
			if sid := app.Client().SessionID(); sid != "" {
				r.printf("session:  %s\n", sid)
			}
			return nil
		},
	}
}

func newDisconnectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.newApp()
			if err != nil {
				return err
			}
			if err := app.Client().Disconnect(); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "session cleared")
			return nil
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the server, session, and what it exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			client := app.Client()

			var (
				tools     []mcp.Tool
				resources []mcp.Resource
				prompts   []mcp.Prompt
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				tools, err = client.ListTools(gctx)
				return err
			})
			g.Go(func() (err error) {
				resources, err = client.ListResources(gctx)
				return err
			})
			g.Go(func() (err error) {
				prompts, err = client.ListPrompts(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			r := newRenderer(os.Stdout, opts.plain)
			r.printf("server:    %s\n", app.ServerURL())
			r.printf("session:   %s\n", orNone(client.SessionID()))
			if info := client.ServerInfo(); info != nil {
				r.printf("name:      %s %s\n", info.ServerInfo.Name, info.ServerInfo.Version)
			}
			r.printf("tools:     %d\n", len(tools))
			r.printf("resources: %d\n", len(resources))
			r.printf("prompts:   %d\n", len(prompts))
			return nil
		},
	}
}

func newServerCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Show or change the stored server URL",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the server URL in use",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := opts.newApp()
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, app.ServerURL())
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <url>",
			Short: "Store a new server URL and drop the old session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				// The new URL is the fallback for every later command.
				opts.server = args[0]
				app, err := opts.newApp()
				if err != nil {
					return err
				}
				if err := app.SetServerURL(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "server set to %s\n", app.ServerURL())
				return nil
			},
		},
	)
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective settings after files and environment are merged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprint(os.Stdout, config.Explain(opts.settings))
			return nil
		},
	}
}

// ABOUTME: Raw protocol commands: tools, call, resources, read, prompts
// ABOUTME: Thin wrappers over the protocol client that print tables or JSON

package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mauromedda/nanobot-go/internal/mcp"
)

func newToolsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			tools, err := app.Client().ListTools(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(tools))
			for _, t := range tools {
				rows = append(rows, []string{t.Name, t.Description})
			}
			newRenderer(os.Stdout, opts.plain).table([]string{"NAME", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

type callOptions struct {
	async         bool
	progressToken string
	raw           bool
}

func newCallCmd(opts *rootOptions) *cobra.Command {
	co := &callOptions{}
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Call a tool with a JSON object of arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var toolArgs map[string]any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			result, err := app.Client().CallTool(ctx, args[0], toolArgs, mcp.CallToolOptions{
				Async:         co.async,
				ProgressToken: co.progressToken,
			})
			if err != nil {
				return err
			}
			if co.raw {
				return printJSON(result)
			}
			printToolResult(newRenderer(os.Stdout, opts.plain), result)
			if result.IsError {
				return fmt.Errorf("tool %s reported an error", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&co.async, "async", false, "Ask the server to run the tool asynchronously")
	cmd.Flags().StringVar(&co.progressToken, "progress-token", "", "Progress token to attach to the call")
	cmd.Flags().BoolVar(&co.raw, "json", false, "Print the raw result as JSON")
	return cmd
}

func printToolResult(r *renderer, result *mcp.CallToolResult) {
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			r.printf("%s\n", r.markdown(c.Text))
		case "image":
			r.printf("%s\n", r.style(dimStyle, fmt.Sprintf("[image %s]", c.MimeType)))
		default:
			r.printf("%s\n", r.style(dimStyle, fmt.Sprintf("[%s]", c.Type)))
		}
	}
	if result.IsError {
		r.printf("%s\n", r.style(errorStyle, "(tool error)"))
	}
}

func newResourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resources the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			resources, err := app.Client().ListResources(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(resources))
			for _, res := range resources {
				rows = append(rows, []string{res.URI, res.MimeType, res.Name})
			}
			newRenderer(os.Stdout, opts.plain).table([]string{"URI", "TYPE", "NAME"}, rows)
			return nil
		},
	}
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "read <uri>",
		Short: "Print the contents of a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			contents, err := app.Client().ReadResource(ctx, args[0])
			if err != nil {
				return err
			}

			if output != "" {
				return writeResource(output, contents)
			}
			for _, c := range contents {
				if c.Text != "" {
					fmt.Fprintln(os.Stdout, c.Text)
					continue
				}
				fmt.Fprintf(os.Stdout, "[%s: %d bytes of binary data, use --output]\n", orNone(c.MimeType), base64.StdEncoding.DecodedLen(len(c.Blob)))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the first content item to this file")
	return cmd
}

func writeResource(path string, contents []mcp.ResourceContents) error {
	if len(contents) == 0 {
		return fmt.Errorf("resource has no contents")
	}
	c := contents[0]
	data := []byte(c.Text)
	if c.Blob != "" {
		decoded, err := base64.StdEncoding.DecodeString(c.Blob)
		if err != nil {
			return fmt.Errorf("decoding blob: %w", err)
		}
		data = decoded
	}
	return os.WriteFile(path, data, 0o644)
}

func newPromptsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prompts",
		Short: "List the prompt templates the server exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			app, err := opts.session(ctx)
			if err != nil {
				return err
			}
			prompts, err := app.Client().ListPrompts(ctx)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(prompts))
			for _, p := range prompts {
				rows = append(rows, []string{p.Name, promptArgs(p.Arguments), p.Description})
			}
			newRenderer(os.Stdout, opts.plain).table([]string{"NAME", "ARGS", "DESCRIPTION"}, rows)
			return nil
		},
	}
}

// promptArgs lists argument names, marking optional ones with "?".
func promptArgs(args []mcp.PromptArgument) string {
	names := make([]string, 0, len(args))
	for _, a := range args {
		if a.Required {
			names = append(names, a.Name)
		} else {
			names = append(names, a.Name+"?")
		}
	}
	return strings.Join(names, ",")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

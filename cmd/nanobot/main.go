// ABOUTME: CLI entry point for nanobot: connects to a nanobot server and chats from the terminal
// ABOUTME: Loads .env and settings, builds the app context, and dispatches cobra subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mauromedda/nanobot-go/internal/config"
	"github.com/mauromedda/nanobot-go/internal/httpclient"
	"github.com/mauromedda/nanobot-go/internal/log"
	"github.com/mauromedda/nanobot-go/internal/securestore"
	"github.com/mauromedda/nanobot-go/pkg/sdk"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	server      string
	projectRoot string
	envFile     string
	verbose     bool
	plain       bool
	timeout     time.Duration

	settings *config.Settings
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "nanobot",
		Short:         "Terminal client for nanobot agent servers",
		Long:          "Connect to a nanobot server, browse its tools and threads, and chat with its agents.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.server, "server", "s", "", "Server base URL (overrides config and stored URL)")
	flags.StringVar(&opts.projectRoot, "project", ".", "Project directory holding .nanobot/config.yaml")
	flags.StringVar(&opts.envFile, "env-file", "", "Additional .env file to load")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Debug logging")
	flags.BoolVar(&opts.plain, "plain", false, "Plain output even on a terminal")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Overall command timeout (0 = none)")

	root.AddCommand(
		newConnectCmd(opts),
		newDisconnectCmd(opts),
		newStatusCmd(opts),
		newServerCmd(opts),
		newConfigCmd(opts),
		newToolsCmd(opts),
		newCallCmd(opts),
		newResourcesCmd(opts),
		newReadCmd(opts),
		newPromptsCmd(opts),
		newAgentsCmd(opts),
		newThreadsCmd(opts),
		newHistoryCmd(opts),
		newChatCmd(opts),
	)
	return root
}

// load reads settings and applies the log level.
func (o *rootOptions) load() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("loading %s: %w", o.envFile, err)
		}
	}

	settings, err := config.Load(o.projectRoot)
	if err != nil {
		return err
	}
	o.settings = settings

	if lvl, ok := log.ParseLevel(settings.LogLevel); ok {
		log.SetLevel(lvl)
	}
	if o.verbose {
		log.SetLevel(log.LevelDebug)
	}
	return nil
}

// secureStore opens the file-backed store under the global config dir.
func (o *rootOptions) secureStore() (securestore.Store, error) {
	if err := config.EnsureDir(config.GlobalDir()); err != nil {
		return nil, fmt.Errorf("creating %s: %w", config.GlobalDir(), err)
	}
	return securestore.NewFileStore(config.SecureStoreFile()), nil
}

func (o *rootOptions) newApp() (*sdk.App, error) {
	secure, err := o.secureStore()
	if err != nil {
		return nil, err
	}
	app, err := sdk.New(
		sdk.WithSettings(o.settings),
		sdk.WithSecureStore(secure),
		sdk.WithServerURL(o.server),
		sdk.WithHTTPClient(httpclient.New()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w (use --server or `nanobot server set <url>`)", err)
	}
	return app, nil
}

// session returns an app whose client holds a session: the stored one when
// present, otherwise a fresh handshake.
func (o *rootOptions) session(ctx context.Context) (*sdk.App, error) {
	app, err := o.newApp()
	if err != nil {
		return nil, err
	}
	ok, err := app.Resume()
	if err != nil {
		log.Warn("%v", err)
	}
	if !ok {
		if _, err := app.Client().Connect(ctx); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// connected returns an app whose store completed Connect (agents and
// threads loaded).
func (o *rootOptions) connected(ctx context.Context) (*sdk.App, error) {
	app, err := o.newApp()
	if err != nil {
		return nil, err
	}
	if err := app.Connect(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

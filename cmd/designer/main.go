// Command designer edits guild templates from the terminal. Each invocation opens a
// designer session against the template server, performs one action and exits.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/api/client"
	"github.com/fastygo/guild-designer/internal/config"
	"github.com/fastygo/guild-designer/internal/designer"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/tree"
	"github.com/fastygo/guild-designer/pkg/logger"
)

// app carries what every command needs. dial is nil outside tests.
type app struct {
	v      *viper.Viper
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	dial   fasthttp.DialFunc
	logger *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "designer",
		Short:         "Edit guild templates",
		Long:          `Lists, edits, forks, activates and shares guild templates held by a template server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ./designer.yaml)")
	flags.String("server", "", "template server URL")
	flags.String("guild", "", "guild id")
	flags.String("token", "", "bearer token")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.Duration("layout-debounce", 0, "quiet period before a layout change is saved")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	_ = a.v.BindPFlag("server_url", flags.Lookup("server"))
	_ = a.v.BindPFlag("guild_id", flags.Lookup("guild"))
	_ = a.v.BindPFlag("token", flags.Lookup("token"))
	_ = a.v.BindPFlag("request_timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("layout_debounce", flags.Lookup("layout-debounce"))
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newTemplatesCmd(a),
		newSharedCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newMoveCmd(a),
		newAddCmd(a),
		newEditCmd(a),
		newActivateCmd(a),
		newDeleteCmd(a),
		newRenameCmd(a),
		newShareCmd(a),
		newCopyCmd(a),
		newSnapshotCmd(a),
		newLayoutCmd(a),
	)
	return root
}

// initConfig layers flags over DESIGNER_* environment over the optional config file over
// the client defaults.
func (a *app) initConfig(cfgFile string) error {
	defaults, err := config.LoadClient()
	if err != nil {
		return err
	}

	a.v.SetDefault("server_url", defaults.ServerURL)
	a.v.SetDefault("guild_id", defaults.GuildID)
	a.v.SetDefault("token", defaults.Token)
	a.v.SetDefault("request_timeout", defaults.RequestTimeout)
	a.v.SetDefault("layout_debounce", defaults.LayoutDebounce)
	a.v.SetDefault("log_level", defaults.Logger.Level)

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		a.v.SetConfigName("designer")
		a.v.SetConfigType("yaml")
		a.v.AddConfigPath(".")
	}
	a.v.SetEnvPrefix("DESIGNER")
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config file: %w", err)
		}
	}

	if a.logger == nil {
		a.logger, err = logger.New(logger.Config{
			Level:    a.v.GetString("log_level"),
			Encoding: defaults.Logger.Encoding,
			Output:   "stderr",
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) clientConfig() (*config.ClientConfig, error) {
	cfg := &config.ClientConfig{
		ServerURL:      a.v.GetString("server_url"),
		GuildID:        a.v.GetString("guild_id"),
		Token:          a.v.GetString("token"),
		RequestTimeout: a.v.GetDuration("request_timeout"),
		LayoutDebounce: a.v.GetDuration("layout_debounce"),
	}
	return cfg, cfg.Validate()
}

func (a *app) client() (*client.Client, *config.ClientConfig, error) {
	cfg, err := a.clientConfig()
	if err != nil {
		return nil, nil, err
	}
	return client.New(client.Options{
		BaseURL: cfg.ServerURL,
		Token:   cfg.Token,
		Timeout: cfg.RequestTimeout,
		Dial:    a.dial,
		Logger:  a.logger,
	}), cfg, nil
}

// session is one designer editing session with a headless tree.
type session struct {
	*designer.Designer
	widget *tree.Headless
	client *client.Client
}

// open starts a designer for the configured guild. The guild's active template is loaded,
// or the one given by templateID when non-zero.
func (a *app) open(ctx context.Context, templateID int64) (*session, error) {
	c, cfg, err := a.client()
	if err != nil {
		return nil, err
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("guild id is required (--guild or DESIGNER_GUILD_ID)")
	}

	widget := tree.NewHeadless()
	d := designer.New(c, designer.Options{
		GuildID:        cfg.GuildID,
		RequestTimeout: cfg.RequestTimeout,
		LayoutDebounce: cfg.LayoutDebounce,
		Widget:         widget,
		Logger:         a.logger,
	})
	a.printNotifications(d.Bus)

	if err := d.Start(ctx); err != nil {
		return nil, err
	}
	if templateID != 0 && templateID != d.Session.LoadedID() {
		if err := d.Engine.Load(ctx, templateID); err != nil {
			return nil, err
		}
	}
	return &session{Designer: d, widget: widget, client: c}, nil
}

func (s *session) close(ctx context.Context) error {
	defer s.client.CloseIdleConnections()
	return s.Close(ctx)
}

func (a *app) printNotifications(bus *eventbus.Bus) {
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed)
	ok := color.New(color.FgGreen)
	eventbus.On(bus, events.Notification, func(e events.NotificationEvent) {
		switch e.Level {
		case events.LevelError:
			_, _ = fail.Fprintln(a.errOut, e.Message)
		case events.LevelWarning:
			_, _ = warn.Fprintln(a.errOut, e.Message)
		case events.LevelSuccess:
			_, _ = ok.Fprintln(a.errOut, e.Message)
		}
	})
}

// commandContext bounds a whole command. A session makes several requests, so it gets room
// for a handful.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.v.GetDuration("request_timeout")
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(cmd.Context(), 4*timeout)
}

func main() {
	a := &app{v: viper.New(), in: os.Stdin, out: os.Stdout, errOut: color.Error}
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		_, _ = color.New(color.FgRed).Fprintln(color.Error, err)
		os.Exit(1)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

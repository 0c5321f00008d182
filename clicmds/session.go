package clicmds

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gitlab.com/driverk/driverk"
	"gitlab.com/driverk/engine/bridge"
	"gitlab.com/driverk/engine/browser"
	"gitlab.com/driverk/engine/report"
	"gitlab.com/driverk/engine/webdriver"
	"gitlab.com/driverk/store"
	"golang.org/x/time/rate"
)

// SessionFlags select and configure the browser being driven
func SessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "toml config to use, flags override it",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "url",
			Usage: "url to load before looking up elements",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "webdriver or chrome",
			Value: string(driverk.WebDriver),
		},
		&cli.StringFlag{
			Name:  "remote",
			Usage: "webdriver remote url",
			Value: "http://localhost:9515",
		},
		&cli.StringFlag{
			Name:  "browser",
			Usage: "webdriver browser name, chrome or firefox",
			Value: "chrome",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "run the browser headless",
			Value: true,
		},
		&cli.StringFlag{
			Name:  "chrome",
			Usage: "chrome binary for the chrome driver",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "leaser",
			Usage: "leaser socket to acquire chrome from instead of starting it locally",
			Value: "",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "poll interval",
			Value: driverk.DefaultPollInterval,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "poll timeout",
			Value: driverk.DefaultPollTimeout,
		},
		&cli.Float64Flag{
			Name:  "ratelimit",
			Usage: "max protocol operations per second, 0 for unlimited",
			Value: 0,
		},
		&cli.StringFlag{
			Name:  "journal",
			Usage: "directory to journal poll attempts to",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "address to serve /metrics on",
			Value: "",
		},
	}
}

// session is an open bridge plus everything that must be torn down with it
type session struct {
	cfg      *driverk.Config
	bridge   *bridge.Bridge
	observer driverk.Observer
	closers  []func() error
}

// loadConfig from --config and overrides from explicitly set flags
func loadConfig(ctx *cli.Context) (*driverk.Config, error) {
	cfg := driverk.DefaultConfig()
	if ctx.String("config") != "" {
		var err error
		if cfg, err = driverk.LoadConfig(ctx.String("config")); err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("driver") || ctx.String("config") == "" {
		cfg.Driver = driverk.DriverType(ctx.String("driver"))
	}
	if ctx.IsSet("remote") {
		cfg.RemoteURL = ctx.String("remote")
	}
	if ctx.IsSet("browser") {
		cfg.BrowserName = ctx.String("browser")
	}
	if ctx.IsSet("headless") {
		cfg.Headless = ctx.Bool("headless")
	}
	if ctx.IsSet("chrome") {
		cfg.ChromePath = ctx.String("chrome")
	}
	if ctx.IsSet("interval") {
		cfg.PollInterval = ctx.Duration("interval").String()
	}
	if ctx.IsSet("timeout") {
		cfg.PollTimeout = ctx.Duration("timeout").String()
	}
	if ctx.IsSet("ratelimit") {
		cfg.RateLimit = ctx.Float64("ratelimit")
	}
	if ctx.IsSet("journal") {
		cfg.JournalPath = ctx.String("journal")
	}
	if ctx.IsSet("metrics") {
		cfg.MetricsAddr = ctx.String("metrics")
	}
	return cfg, cfg.Validate()
}

// openSession connects to the configured browser and loads --url
func openSession(ctx *cli.Context) (*session, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg}
	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	observers := driverk.Observers{report.Attempts()}
	if cfg.JournalPath != "" {
		journal := store.NewJournal(cfg.JournalPath)
		if err := journal.Init(); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, journal.Close)
		observers = append(observers, journal)
	}
	s.observer = observers

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: report.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		s.closers = append(s.closers, srv.Close)
	}

	client, closer, err := connect(openCtx, ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	opts := []bridge.Option{
		bridge.WithCloseTimeout(cfg.SessionCloseTimeout()),
		bridge.WithCloser(closer),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, bridge.WithRateLimit(rate.Limit(cfg.RateLimit), burst))
	}
	s.bridge = bridge.New(report.Instrument(client, string(cfg.Driver)), opts...)
	log.Info().Int64("bridge_id", s.bridge.ID()).Str("driver", string(cfg.Driver)).Msg("session opened")

	if url := ctx.String("url"); url != "" {
		err := s.bridge.Do(func(ctx context.Context, c driverk.ProtocolClient) error {
			nav, ok := c.(driverk.Navigator)
			if !ok {
				return errors.New("driver can not navigate")
			}
			return nav.Navigate(ctx, url)
		})
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "loading %s", url)
		}
	}
	return s, nil
}

// connect to the browser, returning the client and how to close it
func connect(ctx context.Context, cliCtx *cli.Context, cfg *driverk.Config) (driverk.ProtocolClient, bridge.CloserFunc, error) {
	switch cfg.Driver {
	case driverk.Chrome:
		var leaser browser.LeaserService
		if sock := cliCtx.String("leaser"); sock != "" {
			leaser = browser.NewSocketLeaser(sock)
		} else {
			opts := []browser.LeaserOption{browser.WithHeadless(cfg.Headless)}
			if cfg.ChromePath != "" {
				opts = append(opts, browser.WithChromePath(cfg.ChromePath))
			}
			leaser = browser.NewLocalLeaser(opts...)
		}
		sess, err := browser.Open(ctx, leaser)
		if err != nil {
			return nil, nil, err
		}
		return sess.Tab(), func(ctx context.Context) error {
			err := sess.Close(ctx)
			if local, ok := leaser.(*browser.LocalLeaser); ok {
				local.Cleanup()
			}
			return err
		}, nil
	default:
		caps := webdriver.ChromeCapabilities(cfg.Headless)
		if cfg.BrowserName == "firefox" {
			caps = webdriver.FirefoxCapabilities(cfg.Headless)
		}
		client, err := webdriver.NewSession(ctx, cfg.RemoteURL, caps)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
}

// Close the bridge and everything opened with it
func (s *session) Close() error {
	var err error
	if s.bridge != nil {
		err = s.bridge.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if closeErr := s.closers[i](); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close session resource")
		}
	}
	return err
}

package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dealscout/internal/aggregator"
	"dealscout/internal/alerting"
	"dealscout/internal/api"
	"dealscout/internal/config"
	"dealscout/internal/ebay"
	"dealscout/internal/marketplace"
	"dealscout/internal/scanner"
	"dealscout/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config  *config.Config
	Runtime *config.Runtime
	Logger  zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, runtime *config.Runtime, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Runtime: runtime,
		Logger:  logger.With().Str("component", "app").Logger(),
	}
}

func (a *App) newAggregator() *aggregator.Aggregator {
	ec := a.Config.Ebay
	mc := a.Config.Marketplaces

	apiClient := ebay.NewAPIClient(ebay.APIOptions{
		AppID:      ec.AppID,
		CertID:     ec.CertID,
		OAuthURL:   ec.OAuthURL,
		BrowseURL:  ec.BrowseURL,
		FindingURL: ec.FindingURL,
		Timeout:    ec.RequestTimeout,
	}, a.Logger)

	scraper := ebay.NewScraper(ebay.ScraperOptions{
		SearchURL: ec.ScrapeURL,
		HomeURL:   ec.HomeURL,
		Timeout:   ec.RequestTimeout,
		UserAgent: ec.UserAgent,
	}, a.Logger)

	platforms := []aggregator.PlatformSearcher{
		marketplace.NewPoshmarkClient(marketplace.PoshmarkOptions{
			SearchURL: mc.PoshmarkURL,
			Timeout:   mc.RequestTimeout,
		}, a.Logger),
		marketplace.NewMercariClient(marketplace.MercariOptions{
			APIURL:  mc.MercariURL,
			Timeout: mc.RequestTimeout,
		}, a.Logger),
	}

	facebook := marketplace.NewFacebookScraper(marketplace.FacebookOptions{
		StateDir: mc.FacebookStateDir,
	}, a.Logger)

	return aggregator.New(aggregator.Options{
		API:       apiClient,
		Scraper:   scraper,
		Platforms: platforms,
		Facebook:  facebook,
		Settings:  a.Runtime,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newScanner(store *storage.Store) *scanner.Scanner {
	return scanner.New(scanner.Options{
		Interval:    a.Config.Scanner.Interval,
		SampleLimit: a.Config.Scanner.SampleLimit,
		QueryDelay:  a.Config.Scanner.QueryDelay,
	}, a.newAggregator(), store, a.newNotifier(), a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running discovery service: the control API plus
// the background deal scanner.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the service needs persistence")
	}
	defer closeStore()

	agg := a.newAggregator()
	scan := scanner.New(scanner.Options{
		Interval:    a.Config.Scanner.Interval,
		SampleLimit: a.Config.Scanner.SampleLimit,
		QueryDelay:  a.Config.Scanner.QueryDelay,
	}, agg, store, a.newNotifier(), a.Logger)

	if a.Config.Scanner.AutoStart {
		scan.Start()
	}

	errCh := make(chan error, 1)
	var srv *api.Server
	if a.Config.API.Enabled {
		srv = api.NewServer(api.Options{
			Addr:     a.Config.API.Addr,
			Searcher: agg,
			Scanner:  scan,
			Store:    store,
		}, a.Logger)
		go func() {
			errCh <- srv.Start()
		}()
	}

	a.Logger.Info().Msg("deal discovery service started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			a.Logger.Error().Err(err).Msg("api server terminated with error")
		}
	}

	scan.Stop()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.Logger.Error().Err(serr).Msg("api shutdown failed")
		}
	}

	a.Logger.Info().Msg("deal discovery service stopped")
	return err
}

// AnalyzeOptions configure the one-off market analysis command.
type AnalyzeOptions struct {
	Query     string
	Platforms bool
	JSON      bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Status   string
	MinScore int
	Limit    int
}

// ExportOptions hold parameters for exporting discovered opportunities.
type ExportOptions struct {
	Status    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// WatchAddOptions describe a new watch query.
type WatchAddOptions struct {
	Query        string
	Category     string
	MaxBuyPrice  float64
	MinProfit    float64
	MinDealScore int
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/felixgeelhaar/recall/internal/config"
	"github.com/felixgeelhaar/recall/internal/credential"
	"github.com/felixgeelhaar/recall/internal/guard"
	"github.com/felixgeelhaar/recall/internal/memory"
	"github.com/felixgeelhaar/recall/internal/metrics"
	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/plugin"
	"github.com/felixgeelhaar/recall/internal/prompt"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/runtime"
	"github.com/felixgeelhaar/recall/internal/session"
	"github.com/felixgeelhaar/recall/internal/tools/calendar"
	"github.com/felixgeelhaar/recall/internal/tools/files"
	"github.com/felixgeelhaar/recall/internal/tools/googleauth"
	"github.com/felixgeelhaar/recall/internal/tools/mail"
	"github.com/felixgeelhaar/recall/internal/tools/search"
	"github.com/felixgeelhaar/recall/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
)

// App is one wired chat session.
type App struct {
	Controller *runtime.Controller
	Registry   *runtime.ToolRegistry
	Metrics    *prometheus.Registry
	Observer   *observe.Observer

	stores  *stores
	closers []io.Closer
	plugins []*plugin.Handler
}

// NewApp opens the stores, builds the provider and registers every tool.
// confirm gates outgoing email; nil sends without asking.
func NewApp(ctx context.Context, cfg *config.File, obs *observe.Observer, confirm ui.Confirmer) (*App, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Observer: obs, stores: st}

	completer, err := newProvider(ctx, cfg.Provider.Name, cfg, st.vault)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.track(completer)

	embedName := cfg.Provider.EmbedProvider
	if embedName == "" {
		embedName = cfg.Provider.Name
	}
	if embedName == "anthropic" {
		app.Close()
		return nil, fmt.Errorf("%w: anthropic has no embeddings, set provider.embed_provider", provider.ErrEmbeddingsUnsupported)
	}
	var embedder provider.Embedder = completer
	if embedName != cfg.Provider.Name {
		p, err := newProvider(ctx, embedName, cfg, st.vault)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.track(p)
		embedder = p
	}
	embedder = memory.NewCachedEmbedder(embedder, cfg.Provider.EmbedCacheTTL)

	settings := cfg.Settings
	reg := runtime.NewToolRegistry()
	if err := app.registerTools(ctx, reg, cfg, &settings, confirm); err != nil {
		app.Close()
		return nil, err
	}
	reg.Seal()
	app.Registry = reg

	preamble, err := prompt.LoadPreamble(cfg.Preamble)
	if errors.Is(err, fs.ErrNotExist) {
		obs.Log().Debug().Str("path", cfg.Preamble).Msg("no preamble file, using built-in alignment")
		preamble, err = prompt.DefaultPreamble(reg.Specs()), nil
	}
	if err != nil {
		app.Close()
		return nil, err
	}

	buf := session.NewBuffer(st.log, st.index, embedder, obs)
	mem := memory.NewAssembler(embedder, st.index, st.log, obs)
	app.Controller = runtime.New(buf, mem, completer, reg, preamble, &settings, obs)

	app.Metrics = prometheus.NewRegistry()
	metrics.New(app.Metrics).Subscribe(app.Controller.Events())

	obs.Log().Info().
		Str("provider", completer.Name()).
		Str("store", cfg.Store.Driver).
		Int("tools", reg.Count()).
		Msg("recall initialized")
	return app, nil
}

func (a *App) track(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

func newProvider(ctx context.Context, name string, cfg *config.File, v *credential.Vault) (provider.Provider, error) {
	pc := cfg.Provider
	model := pc.Model
	if model == "" {
		model = cfg.Settings.Model
	}

	switch name {
	case "openai":
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = v.Lookup(ctx, "openai.base_url")
		}
		return provider.NewOpenAIProvider(v.Lookup(ctx, "openai.api_key"), baseURL, model, pc.EmbedModel)
	case "ollama":
		return provider.NewOllamaProvider(pc.Host, model, pc.EmbedModel)
	case "gemini":
		return provider.NewGeminiProvider(v.Lookup(ctx, "gemini.api_key"), model, pc.EmbedModel)
	case "anthropic":
		return provider.NewAnthropicProvider(v.Lookup(ctx, "anthropic.api_key"), model)
	case "stub":
		return provider.NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (a *App) registerTools(ctx context.Context, reg *runtime.ToolRegistry, cfg *config.File, settings *config.Settings, confirm ui.Confirmer) error {
	obs := a.Observer

	var searcher search.Searcher
	switch cfg.Search.Backend {
	case "browser":
		searcher = search.NewBrowserSearcher(cfg.Search.Endpoint, cfg.Search.Settle, cfg.Search.Timeout, "")
	case "", "http":
		hs := search.NewHTTPSearcher(cfg.Search.Endpoint, cfg.Search.UserAgent, cfg.Search.Timeout)
		hs.SetSettle(cfg.Search.Settle)
		searcher = hs
	default:
		return fmt.Errorf("unknown search backend %q", cfg.Search.Backend)
	}
	searcher = search.NewCachedSearcher(searcher, cfg.Search.CacheTTL)
	pageCap := func() int { return settings.PageTextCap }
	if err := reg.Register(search.NewHandler(searcher, pageCap, obs)); err != nil {
		return err
	}

	sender, err := a.mailSender(ctx, cfg)
	if err != nil {
		return err
	}
	var mc mail.Confirmer
	if cfg.Mail.Confirm && confirm != nil {
		mc = confirm
	}
	from := cfg.Mail.From
	if from == "" {
		from = cfg.Mail.Username
	}
	if err := reg.Register(mail.NewHandler(sender, mc, from, obs)); err != nil {
		return err
	}

	if err := a.registerCalendar(ctx, reg, cfg); err != nil {
		return err
	}

	g := guard.New(guard.Policy{
		AllowedFileGlobs: cfg.Files.AllowedGlobs,
		MaxFileBytes:     guard.DefaultPolicy.MaxFileBytes,
	})
	if err := reg.Register(files.NewWriter(a.stores.local, g, obs)); err != nil {
		return err
	}
	if err := reg.Register(files.NewReader(a.stores.local, g, obs)); err != nil {
		return err
	}

	handlers, err := plugin.LaunchAll(cfg.Plugins, obs)
	a.plugins = handlers
	if err != nil {
		return err
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) mailSender(ctx context.Context, cfg *config.File) (mail.Sender, error) {
	switch cfg.Mail.Backend {
	case "gmail":
		client, err := googleauth.Client(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.TokenFile, gmail.GmailSendScope)
		if err != nil {
			return nil, fmt.Errorf("gmail: %w", err)
		}
		return mail.NewGmailSender(ctx, client)
	case "", "smtp":
		return &mail.SMTPSender{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.Username,
			Password: a.stores.vault.Lookup(ctx, "mail.password"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

// registerCalendar skips the calendar tag when no Google authorization is on
// disk; the model then gets the unknown-tag treatment.
func (a *App) registerCalendar(ctx context.Context, reg *runtime.ToolRegistry, cfg *config.File) error {
	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		return fmt.Errorf("calendar time zone: %w", err)
	}
	client, err := googleauth.Client(ctx, cfg.Calendar.CredentialsFile, cfg.Calendar.TokenFile, gcal.CalendarEventsScope)
	if err != nil {
		a.Observer.Log().Warn().Err(err).Msg("calendar disabled")
		return nil
	}
	cal, err := calendar.NewGoogleCalendar(ctx, client, cfg.Calendar.CalendarID, loc)
	if err != nil {
		return err
	}
	return reg.Register(calendar.NewHandler(cal, loc, a.Observer))
}

// Close releases plugins, providers and stores.
func (a *App) Close() error {
	for _, p := range a.plugins {
		p.Close()
	}
	for _, c := range a.closers {
		c.Close()
	}
	return a.stores.Close()
}

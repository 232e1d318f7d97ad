package cmd

import (
	"errors"
	"log/slog"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/challengeapi"
	"github.com/uubinn0/Challengobi-sub000/internal/config"
	"github.com/uubinn0/Challengobi-sub000/internal/daemon"
	"github.com/uubinn0/Challengobi-sub000/internal/events"
	"github.com/uubinn0/Challengobi-sub000/internal/ledger"
	"github.com/uubinn0/Challengobi-sub000/internal/store"
	"github.com/uubinn0/Challengobi-sub000/internal/verify"
)

// workflow is the fully wired verification stack shared by the commands.
type workflow struct {
	cfg    config.Config
	logger *slog.Logger

	creds  *auth.Static
	api    *challengeapi.Client
	cache  *store.Cache
	mirror *ledger.Mirror

	store      *verify.Store
	intake     *verify.Intake
	editor     *verify.Editor
	dispatcher *verify.Dispatcher

	closers []func() error
}

// newWorkflow builds the stack from cfg. extra, when non-nil, receives
// verification events next to the configured Kafka publisher.
// The local cache is optional: when it cannot be opened the workflow
// runs without history and without a persisted ledger mirror.
func newWorkflow(cfg config.Config, logger *slog.Logger, extra events.Publisher) *workflow {
	w := &workflow{cfg: cfg, logger: logger}

	w.creds = auth.NewStatic(config.GetAccessToken(cfg))
	w.api = challengeapi.NewClient(config.GetBaseURL(cfg), w.creds, cfg.RequestTimeout())

	var mirrorCache ledger.Cache
	var history verify.HistoryRecorder
	if cache, err := store.Open(cfg.CachePath()); err != nil {
		logger.Warn("local cache unavailable", "path", cfg.CachePath(), "error", err)
	} else {
		w.cache = cache
		w.closers = append(w.closers, cache.Close)
		mirrorCache, history = cache, cache
	}
	w.mirror = ledger.NewMirror(w.api, mirrorCache, nil, logger)

	var pubs []events.Publisher
	if len(cfg.Events.KafkaBrokers) > 0 {
		k := events.NewKafka(cfg.Events.KafkaBrokers)
		w.closers = append(w.closers, k.Close)
		pubs = append(pubs, k)
	}
	if extra != nil {
		pubs = append(pubs, extra)
	}

	w.store = verify.NewStore(nil, cfg.SessionTTL())
	w.intake = verify.NewIntake(w.store, w.api, w.creds, cfg.AttestationSentence(), logger)
	w.editor = verify.NewEditor(w.store, w.mirror)
	w.dispatcher = verify.NewDispatcher(verify.DispatcherConfig{
		Store:    w.store,
		Ledger:   w.api,
		Mirror:   w.mirror,
		History:  history,
		Events:   events.Multi(pubs...),
		Topic:    cfg.Events.Topic,
		Location: cfg.Location(),
		Logger:   logger,
	})
	return w
}

// Close releases the cache and flushes the event publisher.
func (w *workflow) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// history returns the cache as a daemon history source, or nil when the
// cache is unavailable so the interface compares equal to nil.
func (w *workflow) history() daemon.HistoryReader {
	if w.cache == nil {
		return nil
	}
	return w.cache
}

package api

import (
	"strings"

	"github.com/sirupsen/logrus"

	"hookrelay/internal/auth"
	"hookrelay/internal/config"
	"hookrelay/internal/model"
	"hookrelay/internal/store"
	"hookrelay/internal/webhooks"
)

type Server struct {
	Store      store.Store
	Registry   *webhooks.Registry
	Dispatcher *webhooks.Dispatcher
	Auth       *auth.Verifier
	Broker     EventBroker
	Log        *logrus.Logger
}

// NewServer wires the store, registry, dispatcher and broker from config.
// No DATABASE_URL means in-memory store; no REDIS_URL means in-memory broker.
func NewServer(cfg config.Config, log *logrus.Logger) (*Server, error) {
	if log == nil {
		log = logrus.New()
	}

	var st store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		st = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := pg.MigrateDir("db/migrations"); err != nil {
				log.WithError(err).Warn("migrations failed")
			}
		}
		st = pg
	}

	var broker EventBroker
	if cfg.RedisURL != "" {
		rb, err := NewRedisBroker(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("redis broker unavailable, using in-memory")
			broker = NewBroker()
		} else {
			broker = rb
		}
	} else {
		broker = NewBroker()
	}

	tr := webhooks.NewTransport(cfg.Delivery.RatePerSec, cfg.Delivery.Burst)
	d := webhooks.NewDispatcher(st, tr, log)
	s := &Server{
		Store:      st,
		Registry:   webhooks.NewRegistry(st),
		Dispatcher: d,
		Auth:       auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL),
		Broker:     broker,
		Log:        log,
	}
	d.OnResult = func(rec model.DeliveryAttempt) {
		broker.Publish(rec.WebhookID, DeliveryEvent{
			WebhookID: rec.WebhookID, TenantID: rec.TenantID, Attempt: rec,
		})
	}
	return s, nil
}

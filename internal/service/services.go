package service

import (
	"log/slog"

	"github.com/kirinyoku/tripslot/internal/clock"
	"github.com/kirinyoku/tripslot/internal/metrics"
	"github.com/kirinyoku/tripslot/internal/notify"
	"github.com/kirinyoku/tripslot/internal/payment"
	"github.com/kirinyoku/tripslot/internal/repository"
	redisrepo "github.com/kirinyoku/tripslot/internal/repository/redis"
	"github.com/kirinyoku/tripslot/internal/service/booking"
	"github.com/kirinyoku/tripslot/internal/service/generator"
	"github.com/kirinyoku/tripslot/internal/service/ledger"
	"github.com/kirinyoku/tripslot/internal/service/rules"
	"github.com/kirinyoku/tripslot/internal/service/scheduler"
	"github.com/kirinyoku/tripslot/internal/service/waitlist"
	"github.com/kirinyoku/tripslot/internal/uow"
)

type Services struct {
	Rules         *rules.Service
	Generator     *generator.Service
	Ledger        *ledger.Service
	Waitlist      *waitlist.Service
	Booking       *booking.Service
	Jobs          *scheduler.Jobs
	Notifications *notify.Inbox
}

type Config struct {
	Ledger    ledger.Config
	Generator generator.Config
	Waitlist  waitlist.Config
	Scheduler scheduler.Config
}

// Deps are the collaborators shared by every service. Cache, Events,
// Hub, Gateway, Refunder, Dispatcher and Metrics are optional.
type Deps struct {
	Store      repository.Store
	Clock      clock.Clock
	Cache      *redisrepo.Cache
	Events     *redisrepo.SlotEvents
	Hub        *ledger.Hub
	Gateway    payment.Gateway
	Refunder   payment.Refunder
	Dispatcher *notify.Dispatcher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func NewServices(d Deps, cfg Config) *Services {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if cfg.Generator.Location == nil {
		cfg.Generator.Location = cfg.Ledger.Location
	}

	u := uow.New(d.Store)
	repos := d.Store.Repos()

	gen := generator.New(repos.Slots(), d.Cache, d.Clock, d.Metrics, d.Logger, cfg.Generator)
	led := ledger.New(u, d.Clock, d.Cache, d.Events, d.Hub, d.Metrics, d.Logger, cfg.Ledger)
	wl := waitlist.New(u, d.Clock, d.Dispatcher, d.Metrics, d.Logger, cfg.Waitlist)
	bk := booking.New(u, d.Clock, led, wl, d.Gateway, d.Refunder, d.Dispatcher, d.Metrics, d.Logger)

	return &Services{
		Rules:         rules.New(u, gen, d.Cache, d.Clock, d.Logger),
		Generator:     gen,
		Ledger:        led,
		Waitlist:      wl,
		Booking:       bk,
		Jobs:          scheduler.NewJobs(repos.Rules(), gen, led, wl, bk, d.Clock, d.Metrics, d.Logger, cfg.Scheduler),
		Notifications: notify.NewInbox(repos.Notifications()),
	}
}

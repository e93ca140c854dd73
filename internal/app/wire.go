// Package app assembles services over a chosen set of backends.
package app

import (
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/adapter/handler"
	"github.com/rl1809/farm-market/internal/adapter/storage/memory"
	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/core/service"
	"github.com/rl1809/farm-market/internal/port"
)

type Backends struct {
	Market    port.MarketplaceRepository
	Accounts  port.AccountRepository
	Cache     port.CacheRepository
	Feed      port.ChangeFeed
	Bus       port.EventPublisher // optional
	Harvests  port.RecordRepository[domain.Harvest]
	Reminders port.RecordRepository[domain.Reminder]
	Agenda    port.RecordRepository[domain.AgendaItem]
}

// MemoryBackends keeps everything in process, with no event bus.
func MemoryBackends() Backends {
	store := memory.NewStore()
	return Backends{
		Market:    store,
		Accounts:  store,
		Cache:     store,
		Feed:      memory.NewFeed(),
		Harvests:  memory.NewCollection[domain.Harvest](),
		Reminders: memory.NewCollection[domain.Reminder](),
		Agenda:    memory.NewCollection[domain.AgendaItem](),
	}
}

type AuthSettings struct {
	Secret     []byte
	SessionTTL time.Duration
}

// Wire builds every service on b. The returned dispatcher still needs
// workers (Dispatcher.Work) and a Close on shutdown.
func Wire(b Backends, auth AuthSettings, queueSize int, logger *zap.Logger) (handler.Services, *service.Dispatcher) {
	events := service.NewDispatcher(b.Feed, b.Bus, logger.Named("dispatcher"), queueSize)

	market := service.NewMarketplaceService(b.Market, b.Cache, events, logger.Named("marketplace"))
	listings := service.NewListingService(b.Market, b.Feed, events, logger.Named("listings"))
	notifications := service.NewNotificationService(b.Market, b.Feed, events, logger.Named("notifications"))

	svc := handler.Services{
		Auth:          service.NewAuthService(b.Accounts, b.Cache, auth.Secret, auth.SessionTTL, logger.Named("auth")),
		Market:        market,
		Listings:      listings,
		Notifications: notifications,
		Portal:        service.NewPortalService(market, listings, notifications),
		Harvests:      service.NewRecordService(domain.CollectionHarvests, b.Harvests, b.Feed, events, logger),
		Reminders:     service.NewRecordService(domain.CollectionReminders, b.Reminders, b.Feed, events, logger),
		Agenda:        service.NewRecordService(domain.CollectionAgenda, b.Agenda, b.Feed, events, logger),
		Feed:          b.Feed,
	}
	if broker, ok := b.Bus.(handler.BrokerStatus); ok {
		svc.Broker = broker
	}
	return svc, events
}

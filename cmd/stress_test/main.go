package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/farm-market/internal/adapter/storage"
	"github.com/rl1809/farm-market/internal/app"
	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	listingCount  = 20
	totalRequests = 50
	queueSize     = 1000
)

func main() {
	ctx := context.Background()

	// Listings live in memory; idempotency claims go through Redis like the
	// server does.
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	backends := app.MemoryBackends()
	backends.Cache = storage.NewRedisAdapter(rdb)

	svc, events := app.Wire(backends, app.AuthSettings{Secret: []byte("stress"), SessionTTL: time.Hour}, queueSize, zap.NewNop())
	defer events.Close()

	// Drain the event queue in background
	go events.Work(0)

	farmer := mustAccount(ctx, backends, domain.Registration{Name: "farmer", Role: "farmer", Farm: "Stress Farm"})
	listings := make([]domain.Listing, listingCount)
	for i := range listings {
		l, err := svc.Listings.Create(ctx, farmer, domain.Listing{
			Name:         fmt.Sprintf("lot-%d", i),
			Area:         decimal.NewFromInt(10),
			PricePerUnit: decimal.NewFromInt(20),
		})
		if err != nil {
			log.Fatalf("failed to create listing: %v", err)
		}
		listings[i] = l
	}

	buyers := make([]domain.Account, totalRequests)
	for i := range buyers {
		buyers[i] = mustAccount(ctx, backends, domain.Registration{Name: fmt.Sprintf("buyer-%d", i), Role: "buyer"})
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32

	// Spawn concurrent requests, two or three buyers per listing
	var wg sync.WaitGroup
	start := time.Now()
	runID := time.Now().UnixNano()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := svc.Market.Reserve(ctx, service.ReserveRequest{
				RequestID:   fmt.Sprintf("stress-%d-%d", runID, i),
				ListingID:   listings[i%listingCount].ID,
				Quantity:    decimal.NewFromInt(4),
				Destination: "Warehouse",
			}, buyers[i])
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Listings:         %d\n", listingCount)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == listingCount && fail == totalRequests-listingCount {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d failed\n", listingCount, totalRequests-listingCount)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			listingCount, totalRequests-listingCount, success, fail)
	}

	// Verify every listing sold exactly once
	market, err := svc.Market.Market(ctx, domain.ListingStatusActive)
	if err != nil {
		log.Fatalf("failed to list market: %v", err)
	}
	if len(market) == 0 {
		fmt.Println("PASS: No listing left active")
	} else {
		fmt.Printf("FAIL: Expected no active listings, got %d\n", len(market))
	}
}

func mustAccount(ctx context.Context, b app.Backends, reg domain.Registration) domain.Account {
	role, err := domain.ParseRole(reg.Role)
	if err != nil {
		log.Fatalf("invalid account %s: %v", reg.Name, err)
	}
	account := domain.Account{
		ID:       reg.Name,
		Name:     reg.Name,
		Email:    reg.Name + "@stress.local",
		Farm:     reg.Farm,
		RoleName: role.Name(),
	}
	if err := b.Accounts.CreateAccount(ctx, account); err != nil {
		log.Fatalf("failed to create account %s: %v", reg.Name, err)
	}
	return account
}

package handler_test

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/farm-market/internal/adapter/handler"
	"github.com/rl1809/farm-market/internal/app"
	"github.com/rl1809/farm-market/internal/core/domain"
)

type rpcEnv struct {
	svc    handler.Services
	client *handler.MarketplaceClient
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	svc, events := app.Wire(app.MemoryBackends(), app.AuthSettings{Secret: []byte("rpc-secret"), SessionTTL: time.Hour}, 1000, zap.NewNop())
	go events.Work(0)
	t.Cleanup(events.Close)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	handler.RegisterMarketplaceServer(srv, handler.NewGRPCHandler(svc.Auth, svc.Market, zap.NewNop()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &rpcEnv{svc: svc, client: handler.NewMarketplaceClient(conn)}
}

func (e *rpcEnv) account(t *testing.T, reg domain.Registration) (domain.Account, string) {
	t.Helper()
	ctx := context.Background()
	reg.Email = reg.Name + "@example.com"
	reg.Password = "secret1"
	_, err := e.svc.Auth.CreateAccount(ctx, reg)
	require.NoError(t, err)
	session, err := e.svc.Auth.SignIn(ctx, reg.Email, reg.Password)
	require.NoError(t, err)
	account, err := e.svc.Auth.CurrentSession(ctx, session.Token)
	require.NoError(t, err)
	return account, session.Token
}

func (e *rpcEnv) listing(t *testing.T, farmer domain.Account) domain.Listing {
	t.Helper()
	l, err := e.svc.Listings.Create(context.Background(), farmer, domain.Listing{
		Name: "Wheat", Area: decimal.NewFromInt(10), PricePerUnit: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	return l
}

func TestGRPC_ReserveAndProcess(t *testing.T) {
	e := newRPCEnv(t)
	ctx := context.Background()
	farmer, _ := e.account(t, domain.Registration{Name: "ana", Role: "farmer", Farm: "Acres"})
	_, buyer := e.account(t, domain.Registration{Name: "bea", Role: "comprador"})
	_, carrier := e.account(t, domain.Registration{Name: "cal", Role: "carrier", PricePerKm: decimal.NewFromInt(15), MaxCapacity: decimal.NewFromInt(20)})
	l := e.listing(t, farmer)

	reply, err := e.client.Reserve(ctx, buyer, &handler.ReserveRPCRequest{
		RequestID: "req-1", ListingID: l.ID, Quantity: decimal.NewFromInt(4), Destination: "Town",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentStatusPending, reply.Shipment.Status)
	assert.True(t, reply.Shipment.TotalPrice.Equal(decimal.NewFromInt(80)))

	_, err = e.client.Reserve(ctx, buyer, &handler.ReserveRPCRequest{
		RequestID: "req-1", ListingID: l.ID, Quantity: decimal.NewFromInt(4), Destination: "Town",
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	reply, err = e.client.ProcessShipment(ctx, carrier, &handler.ProcessShipmentRPCRequest{
		ShipmentID: reply.Shipment.ID, Action: domain.ShipmentActionAccept,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentStatusAccepted, reply.Shipment.Status)

	_, err = e.client.CancelOrder(ctx, buyer, &handler.ShipmentRPCRequest{ShipmentID: reply.Shipment.ID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	reply, err = e.client.CompleteDelivery(ctx, carrier, &handler.ShipmentRPCRequest{ShipmentID: reply.Shipment.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.ShipmentStatusDelivered, reply.Shipment.Status)
}

func TestGRPC_ErrorCodes(t *testing.T) {
	e := newRPCEnv(t)
	ctx := context.Background()
	farmer, farmerToken := e.account(t, domain.Registration{Name: "ana", Role: "farmer", Farm: "Acres"})
	_, buyer := e.account(t, domain.Registration{Name: "bea", Role: "buyer"})
	l := e.listing(t, farmer)

	_, err := e.client.Reserve(ctx, "garbage", &handler.ReserveRPCRequest{ListingID: l.ID})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = e.client.Reserve(ctx, farmerToken, &handler.ReserveRPCRequest{
		ListingID: l.ID, Quantity: decimal.NewFromInt(1), Destination: "Town",
	})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = e.client.Reserve(ctx, buyer, &handler.ReserveRPCRequest{
		ListingID: "missing", Quantity: decimal.NewFromInt(1), Destination: "Town",
	})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = e.client.Reserve(ctx, buyer, &handler.ReserveRPCRequest{
		ListingID: l.ID, Quantity: decimal.Zero, Destination: "Town",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = e.client.ProcessShipment(ctx, buyer, &handler.ProcessShipmentRPCRequest{ShipmentID: "x", Action: "fly"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestGRPC_ConcurrentReserveSingleWinner(t *testing.T) {
	e := newRPCEnv(t)
	farmer, _ := e.account(t, domain.Registration{Name: "ana", Role: "farmer", Farm: "Acres"})
	l := e.listing(t, farmer)

	const buyers = 20
	tokens := make([]string, buyers)
	for i := range tokens {
		_, tokens[i] = e.account(t, domain.Registration{Name: "buyer" + string(rune('a'+i)), Role: "buyer"})
	}

	var wins, lost atomic.Int32
	var wg sync.WaitGroup
	for _, token := range tokens {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			_, err := e.client.Reserve(context.Background(), token, &handler.ReserveRPCRequest{
				ListingID: l.ID, Quantity: decimal.NewFromInt(2), Destination: "Town",
			})
			switch status.Code(err) {
			case codes.OK:
				wins.Add(1)
			case codes.FailedPrecondition:
				lost.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(token)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(buyers-1), lost.Load())
}

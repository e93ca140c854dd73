package handler

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/farm-market/internal/core/domain"
	"github.com/rl1809/farm-market/internal/core/service"
)

// JSONCodecName is the content subtype clients must select, see
// MarketplaceClient.
const JSONCodecName = "json"

const serviceName = "farmmarket.Marketplace"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return JSONCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type ReserveRPCRequest struct {
	RequestID   string          `json:"request_id"`
	ListingID   string          `json:"listing_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Destination string          `json:"destination"`
}

type ProcessShipmentRPCRequest struct {
	ShipmentID string                `json:"shipment_id"`
	Action     domain.ShipmentAction `json:"action"`
}

type ShipmentRPCRequest struct {
	ShipmentID string `json:"shipment_id"`
}

type ShipmentReply struct {
	Shipment domain.Shipment `json:"shipment"`
}

// MarketplaceServer is the RPC surface of the coordinator.
type MarketplaceServer interface {
	Reserve(context.Context, *ReserveRPCRequest) (*ShipmentReply, error)
	ProcessShipment(context.Context, *ProcessShipmentRPCRequest) (*ShipmentReply, error)
	CancelOrder(context.Context, *ShipmentRPCRequest) (*ShipmentReply, error)
	CompleteDelivery(context.Context, *ShipmentRPCRequest) (*ShipmentReply, error)
}

var MarketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reserve", Handler: unaryHandler("Reserve", MarketplaceServer.Reserve)},
		{MethodName: "ProcessShipment", Handler: unaryHandler("ProcessShipment", MarketplaceServer.ProcessShipment)},
		{MethodName: "CancelOrder", Handler: unaryHandler("CancelOrder", MarketplaceServer.CancelOrder)},
		{MethodName: "CompleteDelivery", Handler: unaryHandler("CompleteDelivery", MarketplaceServer.CompleteDelivery)},
	},
	Metadata: "farmmarket/marketplace.json",
}

func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&MarketplaceServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(MarketplaceServer, context.Context, *Req) (*ShipmentReply, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + serviceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketplaceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(MarketplaceServer), ctx, req.(*Req))
		})
	}
}

type GRPCHandler struct {
	auth   *service.AuthService
	market *service.MarketplaceService
	logger *zap.Logger
}

func NewGRPCHandler(auth *service.AuthService, market *service.MarketplaceService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{auth: auth, market: market, logger: logger}
}

var _ MarketplaceServer = (*GRPCHandler)(nil)

func (h *GRPCHandler) Reserve(ctx context.Context, req *ReserveRPCRequest) (*ShipmentReply, error) {
	account, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}
	shipment, err := h.market.Reserve(ctx, service.ReserveRequest{
		RequestID:   req.RequestID,
		ListingID:   req.ListingID,
		Quantity:    req.Quantity,
		Destination: req.Destination,
	}, account)
	return h.reply(shipment, err)
}

func (h *GRPCHandler) ProcessShipment(ctx context.Context, req *ProcessShipmentRPCRequest) (*ShipmentReply, error) {
	account, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}
	shipment, err := h.market.ProcessShipment(ctx, req.ShipmentID, req.Action, account)
	return h.reply(shipment, err)
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *ShipmentRPCRequest) (*ShipmentReply, error) {
	account, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}
	shipment, err := h.market.CancelOrder(ctx, req.ShipmentID, account)
	return h.reply(shipment, err)
}

func (h *GRPCHandler) CompleteDelivery(ctx context.Context, req *ShipmentRPCRequest) (*ShipmentReply, error) {
	account, err := h.caller(ctx)
	if err != nil {
		return nil, err
	}
	shipment, err := h.market.CompleteDelivery(ctx, req.ShipmentID, account)
	return h.reply(shipment, err)
}

// caller resolves the bearer token in the authorization metadata.
func (h *GRPCHandler) caller(ctx context.Context) (domain.Account, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 {
		return domain.Account{}, h.status(service.ErrNoSession)
	}
	token, ok := bearerToken(values[0])
	if !ok {
		return domain.Account{}, h.status(service.ErrNoSession)
	}
	account, err := h.auth.CurrentSession(ctx, token)
	if err != nil {
		return domain.Account{}, h.status(err)
	}
	return account, nil
}

func (h *GRPCHandler) reply(shipment domain.Shipment, err error) (*ShipmentReply, error) {
	if err != nil {
		return nil, h.status(err)
	}
	return &ShipmentReply{Shipment: shipment}, nil
}

func (h *GRPCHandler) status(err error) error {
	code := grpcCode(err)
	if classify(err) == classInternal {
		h.logger.Error("rpc failed", zap.Error(err))
	}
	return status.Error(code, publicMessage(err))
}

// MarketplaceClient calls the marketplace RPCs with the JSON codec.
type MarketplaceClient struct {
	conn grpc.ClientConnInterface
}

func NewMarketplaceClient(conn grpc.ClientConnInterface) *MarketplaceClient {
	return &MarketplaceClient{conn: conn}
}

func (c *MarketplaceClient) Reserve(ctx context.Context, token string, req *ReserveRPCRequest) (*ShipmentReply, error) {
	return c.invoke(ctx, token, "Reserve", req)
}

func (c *MarketplaceClient) ProcessShipment(ctx context.Context, token string, req *ProcessShipmentRPCRequest) (*ShipmentReply, error) {
	return c.invoke(ctx, token, "ProcessShipment", req)
}

func (c *MarketplaceClient) CancelOrder(ctx context.Context, token string, req *ShipmentRPCRequest) (*ShipmentReply, error) {
	return c.invoke(ctx, token, "CancelOrder", req)
}

func (c *MarketplaceClient) CompleteDelivery(ctx context.Context, token string, req *ShipmentRPCRequest) (*ShipmentReply, error) {
	return c.invoke(ctx, token, "CompleteDelivery", req)
}

func (c *MarketplaceClient) invoke(ctx context.Context, token, method string, req any) (*ShipmentReply, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
	out := new(ShipmentReply)
	err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, out, grpc.CallContentSubtype(JSONCodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

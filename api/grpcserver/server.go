package grpcserver

import (
	"context"
	"io"
	"log"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"lobsim/domain/environment"
	"lobsim/domain/market"
	"lobsim/service"
	"lobsim/snapshot"
)

// Server adapts SimulationService to gRPC.
type Server struct {
	svc *service.SimulationService
}

var _ SimulatorServer = (*Server)(nil)

func NewServer(svc *service.SimulationService) *Server {
	return &Server{svc: svc}
}

// -------------------- Commands --------------------

func (s *Server) Initialise(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	id, err := s.svc.Initialise(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	log.Printf("[gRPC] Initialise episode=%s", id)
	return reply(map[string]any{"episode_id": id})
}

func (s *Server) Step(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	res, err := s.svc.Step(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(fromStep(res))
}

func (s *Server) PlaceOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	side, err := sideField(req)
	if err != nil {
		return nil, err
	}
	price, err := numberField(req, "price")
	if err != nil {
		return nil, err
	}
	size, err := numberField(req, "size")
	if err != nil {
		return nil, err
	}

	placed, err := s.svc.PlaceOrder(side, price, int64(size))
	if err != nil {
		return nil, toStatus(err)
	}

	log.Printf(
		"[gRPC] PlaceOrder side=%v price=%v size=%d placed=%v",
		side, price, int64(size), placed,
	)
	return reply(map[string]any{"placed": placed})
}

func (s *Server) CancelOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	side, err := sideField(req)
	if err != nil {
		return nil, err
	}
	price, err := numberField(req, "price")
	if err != nil {
		return nil, err
	}

	cancelled, err := s.svc.CancelOrder(side, price)
	if err != nil {
		return nil, toStatus(err)
	}

	log.Printf("[gRPC] CancelOrder side=%v price=%v cancelled=%v", side, price, cancelled)
	return reply(map[string]any{"cancelled": cancelled})
}

func (s *Server) MarketOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	size, err := numberField(req, "size")
	if err != nil {
		return nil, err
	}
	out, err := s.svc.MarketOrder(int64(size))
	if err != nil {
		return nil, toStatus(err)
	}
	log.Printf("[gRPC] MarketOrder size=%d filled=%d", int64(size), out.Volume)
	return reply(fromExecution(out))
}

func (s *Server) ClearInventory(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := s.svc.ClearInventory()
	if err != nil {
		return nil, toStatus(err)
	}
	log.Printf("[gRPC] ClearInventory filled=%d", out.Volume)
	return reply(fromExecution(out))
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return reply(fromView(s.svc.Book()))
}

// -------------------- Converters --------------------

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, market.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, market.ErrOutOfRange), errors.Is(err, io.EOF):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, market.ErrInvalidState):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func sideField(req *structpb.Struct) (market.Side, error) {
	switch req.GetFields()["side"].GetStringValue() {
	case "ask":
		return market.Ask, nil
	case "bid":
		return market.Bid, nil
	default:
		return 0, status.Error(codes.InvalidArgument, `side must be "ask" or "bid"`)
	}
}

func numberField(req *structpb.Struct, name string) (float64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "missing %s", name)
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	return v.GetNumberValue(), nil
}

func fromExecution(x market.Execution) map[string]any {
	return map[string]any{
		"volume":     x.Volume,
		"proxy_pnl":  x.ProxyPnL,
		"cash_value": x.CashValue,
	}
}

func fromStep(r environment.StepResult) map[string]any {
	return map[string]any{
		"date":          r.Tick.Date,
		"time":          r.Tick.Time,
		"ask":           fromExecution(r.Ask),
		"bid":           fromExecution(r.Bid),
		"adverse":       fromExecution(r.Adverse),
		"midprice_move": r.MidpriceMove,
		"position":      r.Position,
		"skipped":       r.Skipped,
	}
}

func fromSide(v snapshot.SideView) map[string]any {
	levels := make([]any, 0, len(v.Levels))
	for _, l := range v.Levels {
		levels = append(levels, map[string]any{"price": l.Price, "volume": l.Volume})
	}
	orders := make([]any, 0, len(v.Orders))
	for _, o := range v.Orders {
		orders = append(orders, map[string]any{
			"id":           o.ID,
			"price":        o.Price,
			"size":         o.Size,
			"remaining":    o.Remaining,
			"queue_ahead":  o.QueueAhead,
			"queue_behind": o.QueueBehind,
		})
	}
	return map[string]any{
		"levels":       levels,
		"orders":       orders,
		"n_transacted": v.NTransacted,
	}
}

func fromView(v snapshot.View) map[string]any {
	return map[string]any{
		"seq":        v.Seq,
		"episode_id": v.EpisodeID,
		"date":       v.Date,
		"time":       v.Time,
		"position":   v.Position,
		"cash":       v.Cash,
		"ask":        fromSide(v.Ask),
		"bid":        fromSide(v.Bid),
	}
}

package handler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stockroom/internal/adapter/handler/pb"
	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/service"
)

type GRPCHandler struct {
	pb.UnimplementedOrderServiceServer
	orderService *service.OrderService
	logger       *zap.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orderService: orderService, logger: logger}
}

// SubmitOrder answers with the HTTP envelope. Business failures are envelopes, not gRPC errors.
func (h *GRPCHandler) SubmitOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// Struct fields are an unordered map; json.Marshal sorts the keys, which keeps
	// line processing deterministic for a given request.
	raw, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}

	var env envelope
	orderReq, err := domain.DecodeOrderRequest(raw)
	if err == nil {
		var result *domain.ReconciliationResult
		result, err = h.orderService.SubmitOrder(ctx, orderReq)
		if err == nil {
			env = successEnvelope(submissionData(result))
		}
	}
	if err != nil {
		h.logger.Info("grpc submit order failed", zap.Error(err))
		env = errorEnvelope(err)
	}

	resp, err := toStruct(env)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return resp, nil
}

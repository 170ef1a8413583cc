package control

import (
	"context"

	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/errors"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func RegisterGRPCServerHandler(grpcServerRegistrar grpc.ServiceRegistrar, handler domain.Contract, logger logging.Logger) {
	grpcServerRegistrar.RegisterService(&uplinkAgentServiceDesc, &grpcServerHandler{
		handler: handler,
		logger:  logger,
	})
}

type grpcServerHandler struct {
	handler domain.Contract
	logger  logging.Logger
}

func (h *grpcServerHandler) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	agentStatus, err := h.handler.Status(ctx)
	if err != nil {
		h.logger.Errorf("Status server handler: %v", err)
		return nil, toStatusError(err)
	}
	response, err := statusToStruct(agentStatus)
	if err != nil {
		h.logger.Errorf("Status server handler, encoding: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Status server handler done")
	return response, nil
}

func (h *grpcServerHandler) UpdateConfiguration(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	settings, err := settingsFromStruct(in)
	if err != nil {
		h.logger.Warnf("UpdateConfiguration server handler, bad request: %v", err)
		return nil, toStatusError(err)
	}
	if err := h.handler.UpdateConfiguration(ctx, settings); err != nil {
		h.logger.Errorf("UpdateConfiguration server handler: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("UpdateConfiguration server handler done")
	return &emptypb.Empty{}, nil
}

func (h *grpcServerHandler) Stop(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := h.handler.Stop(ctx); err != nil {
		h.logger.Errorf("Stop server handler: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("Stop server handler done")
	return &emptypb.Empty{}, nil
}

func (h *grpcServerHandler) IsChildHealthy(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	healthy, err := h.handler.IsChildHealthy(ctx)
	if err != nil {
		h.logger.Errorf("IsChildHealthy server handler: %v", err)
		return nil, toStatusError(err)
	}
	return wrapperspb.Bool(healthy), nil
}

func (h *grpcServerHandler) PushData(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	record, err := recordFromStruct(in)
	if err != nil {
		h.logger.Warnf("PushData server handler, bad request: %v", err)
		return nil, toStatusError(err)
	}
	if err := h.handler.PushData(ctx, record); err != nil {
		h.logger.Errorf("PushData server handler: %v", err)
		return nil, toStatusError(err)
	}
	h.logger.Debugf("PushData server handler done, stream: %s, sequence: %d", record.Stream, record.Sequence)
	return &emptypb.Empty{}, nil
}

func toStatusError(err error) error {
	code := codes.Internal
	switch {
	case errors.IsValidationError(err):
		code = codes.InvalidArgument
	case errors.IsConflictError(err):
		code = codes.FailedPrecondition
	case errors.IsNotFoundError(err):
		code = codes.NotFound
	case errors.IsTimeoutError(err):
		code = codes.DeadlineExceeded
	case errors.IsCancelledError(err):
		code = codes.Canceled
	}
	return status.Error(code, err.Error())
}

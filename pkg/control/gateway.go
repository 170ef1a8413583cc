package control

import (
	"context"

	"github.com/core-tools/hsu-uplink/pkg/domain"
	"github.com/core-tools/hsu-uplink/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func NewGRPCClientGateway(grpcClientConnection grpc.ClientConnInterface, logger logging.Logger) domain.Contract {
	return &grpcClientGateway{
		conn:   grpcClientConnection,
		logger: logger,
	}
}

type grpcClientGateway struct {
	conn   grpc.ClientConnInterface
	logger logging.Logger
}

func (gw *grpcClientGateway) Status(ctx context.Context) (*domain.AgentStatus, error) {
	response := &structpb.Struct{}
	if err := gw.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, response); err != nil {
		gw.logger.Errorf("Status client gateway: %v", err)
		return nil, err
	}
	gw.logger.Debugf("Status client gateway done")
	return statusFromStruct(response), nil
}

func (gw *grpcClientGateway) UpdateConfiguration(ctx context.Context, settings domain.UplinkSettings) error {
	request, err := settingsToStruct(settings)
	if err != nil {
		gw.logger.Errorf("UpdateConfiguration client gateway, encoding: %v", err)
		return err
	}
	if err := gw.conn.Invoke(ctx, methodUpdateConfiguration, request, &emptypb.Empty{}); err != nil {
		gw.logger.Errorf("UpdateConfiguration client gateway: %v", err)
		return err
	}
	gw.logger.Debugf("UpdateConfiguration client gateway done")
	return nil
}

func (gw *grpcClientGateway) Stop(ctx context.Context) error {
	if err := gw.conn.Invoke(ctx, methodStop, &emptypb.Empty{}, &emptypb.Empty{}); err != nil {
		gw.logger.Errorf("Stop client gateway: %v", err)
		return err
	}
	gw.logger.Debugf("Stop client gateway done")
	return nil
}

func (gw *grpcClientGateway) IsChildHealthy(ctx context.Context) (bool, error) {
	response := &wrapperspb.BoolValue{}
	if err := gw.conn.Invoke(ctx, methodIsChildHealthy, &emptypb.Empty{}, response); err != nil {
		gw.logger.Errorf("IsChildHealthy client gateway: %v", err)
		return false, err
	}
	return response.GetValue(), nil
}

func (gw *grpcClientGateway) PushData(ctx context.Context, record domain.TelemetryRecord) error {
	request, err := recordToStruct(record)
	if err != nil {
		gw.logger.Errorf("PushData client gateway, encoding: %v", err)
		return err
	}
	if err := gw.conn.Invoke(ctx, methodPushData, request, &emptypb.Empty{}); err != nil {
		gw.logger.Errorf("PushData client gateway: %v", err)
		return err
	}
	gw.logger.Debugf("PushData client gateway done")
	return nil
}

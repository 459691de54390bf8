package grpc_control

import (
	"context"
	"encoding/json"
	"time"

	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "marketrelay.control.v1.RelayControl"

// -----------------------------------------------------------------------------
// Service definition
// -----------------------------------------------------------------------------

// RelayControlServer is the operator surface of the relay. Messages use the
// protobuf well-known Struct type so no generated code is needed.
type RelayControlServer interface {
	GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	DisconnectSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var RelayControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: getStatusHandler},
		{MethodName: "DisconnectSession", Handler: disconnectSessionHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketrelay/control/v1/control.proto",
}

func RegisterRelayControlServer(s grpc.ServiceRegistrar, srv RelayControlServer) {
	s.RegisterService(&RelayControl_ServiceDesc, srv)
}

func getStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayControlServer).GetStatus(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func disconnectSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RelayControlServer).DisconnectSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DisconnectSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RelayControlServer).DisconnectSession(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// -----------------------------------------------------------------------------
// ControlService
// -----------------------------------------------------------------------------

// ControlService implements RelayControlServer on top of the relay hub.
type ControlService struct {
	Relay  interfaces.IRelayController
	Logger *logger.Logger
}

func NewControlService(relay interfaces.IRelayController, log *logger.Logger) *ControlService {
	if log == nil {
		log = logger.NewLogger("ControlService")
	}
	return &ControlService{Relay: relay, Logger: log}
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetStatus(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error) {
	st, err := toStruct(s.Relay.Status())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding status: %v", err)
	}
	return st, nil
}

// -----------------------------------------------------------------------------

// DisconnectSession expects {"id": "<session id>"}.
func (s *ControlService) DisconnectSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	if !s.Relay.Disconnect(id) {
		return nil, status.Errorf(codes.NotFound, "session %s not found", id)
	}

	s.Logger.Info("gRPC: disconnected session %s", id)
	return structpb.NewStruct(map[string]interface{}{
		"id":           id,
		"disconnected": true,
	})
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// NewServer builds a gRPC server carrying the control service and the
// standard health service.
func NewServer(svc RelayControlServer, log *logger.Logger) (*grpc.Server, *health.Server) {
	if log == nil {
		log = logger.NewLogger("ControlService")
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	RegisterRelayControlServer(srv, svc)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}

func loggingInterceptor(log *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			log.Warning("gRPC %s failed after %v: %v", info.FullMethod, time.Since(start), err)
		} else {
			log.Debug("gRPC %s ok in %v", info.FullMethod, time.Since(start))
		}
		return resp, err
	}
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// ControlClient calls the control service and decodes its Struct replies.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (models.MRelayStatus, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/GetStatus", &emptypb.Empty{}, out, opts...); err != nil {
		return models.MRelayStatus{}, err
	}

	var st models.MRelayStatus
	if err := fromStruct(out, &st); err != nil {
		return models.MRelayStatus{}, err
	}
	return st, nil
}

func (c *ControlClient) DisconnectSession(ctx context.Context, id string, opts ...grpc.CallOption) error {
	in, err := structpb.NewStruct(map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	return c.cc.Invoke(ctx, "/"+ServiceName+"/DisconnectSession", in, new(structpb.Struct), opts...)
}

// -----------------------------------------------------------------------------

func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(s *structpb.Struct, out interface{}) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

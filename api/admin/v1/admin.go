// Package adminv1 defines the kiosk.admin.v1.AdminService gRPC contract. Messages are
// google.protobuf.Struct so the service carries no generated message code; the field names of each
// request and response are documented on the method.
package adminv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "kiosk.admin.v1.AdminService"

const (
	AdminService_Summarize_FullMethodName         = "/kiosk.admin.v1.AdminService/Summarize"
	AdminService_ListFleetPresence_FullMethodName = "/kiosk.admin.v1.AdminService/ListFleetPresence"
	AdminService_GetSession_FullMethodName        = "/kiosk.admin.v1.AdminService/GetSession"
	AdminService_ListSessionEvents_FullMethodName = "/kiosk.admin.v1.AdminService/ListSessionEvents"
	AdminService_ReplaySession_FullMethodName     = "/kiosk.admin.v1.AdminService/ReplaySession"
	AdminService_ReapStaleSessions_FullMethodName = "/kiosk.admin.v1.AdminService/ReapStaleSessions"
	AdminService_RegisterKiosk_FullMethodName     = "/kiosk.admin.v1.AdminService/RegisterKiosk"
	AdminService_SetKioskActive_FullMethodName    = "/kiosk.admin.v1.AdminService/SetKioskActive"
	AdminService_ListAuditLog_FullMethodName      = "/kiosk.admin.v1.AdminService/ListAuditLog"
)

// AdminServiceServer is the server API for AdminService.
type AdminServiceServer interface {
	// Summarize takes optional kioskId, startedFrom and startedTo (RFC 3339) and returns the
	// session summary for the matching sessions.
	Summarize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListFleetPresence returns {kiosks: [...]} with the presence of every kiosk.
	ListFleetPresence(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// GetSession takes sessionId.
	GetSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListSessionEvents takes sessionId and returns {events: [...]} in occurrence order.
	ListSessionEvents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ReplaySession takes sessionId and compares stored flags with a replay of the event log.
	ReplaySession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ReapStaleSessions takes an optional ceilingSeconds and returns {reaped: n}.
	ReapStaleSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// RegisterKiosk takes kioskId and returns the device.
	RegisterKiosk(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// SetKioskActive takes kioskId and active.
	SetKioskActive(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ListAuditLog takes an optional limit and returns {entries: [...]}, newest first.
	ListAuditLog(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterAdminServiceServer registers srv with s.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminService_ServiceDesc, srv)
}

type unaryMethod func(AdminServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AdminServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AdminServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, h)
	}
}

// AdminService_ServiceDesc is the grpc.ServiceDesc for AdminService.
var AdminService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Summarize", Handler: handler(AdminService_Summarize_FullMethodName, AdminServiceServer.Summarize)},
		{MethodName: "ListFleetPresence", Handler: handler(AdminService_ListFleetPresence_FullMethodName, AdminServiceServer.ListFleetPresence)},
		{MethodName: "GetSession", Handler: handler(AdminService_GetSession_FullMethodName, AdminServiceServer.GetSession)},
		{MethodName: "ListSessionEvents", Handler: handler(AdminService_ListSessionEvents_FullMethodName, AdminServiceServer.ListSessionEvents)},
		{MethodName: "ReplaySession", Handler: handler(AdminService_ReplaySession_FullMethodName, AdminServiceServer.ReplaySession)},
		{MethodName: "ReapStaleSessions", Handler: handler(AdminService_ReapStaleSessions_FullMethodName, AdminServiceServer.ReapStaleSessions)},
		{MethodName: "RegisterKiosk", Handler: handler(AdminService_RegisterKiosk_FullMethodName, AdminServiceServer.RegisterKiosk)},
		{MethodName: "SetKioskActive", Handler: handler(AdminService_SetKioskActive_FullMethodName, AdminServiceServer.SetKioskActive)},
		{MethodName: "ListAuditLog", Handler: handler(AdminService_ListAuditLog_FullMethodName, AdminServiceServer.ListAuditLog)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "admin/v1/admin.proto",
}

// AdminServiceClient is the client API for AdminService.
type AdminServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminServiceClient returns a client that calls AdminService over cc.
func NewAdminServiceClient(cc grpc.ClientConnInterface) *AdminServiceClient {
	return &AdminServiceClient{cc: cc}
}

func (c *AdminServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminServiceClient) Summarize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_Summarize_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) ListFleetPresence(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_ListFleetPresence_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) GetSession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_GetSession_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) ListSessionEvents(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_ListSessionEvents_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) ReplaySession(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_ReplaySession_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) ReapStaleSessions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_ReapStaleSessions_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) RegisterKiosk(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_RegisterKiosk_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) SetKioskActive(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_SetKioskActive_FullMethodName, in, opts...)
}

func (c *AdminServiceClient) ListAuditLog(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, AdminService_ListAuditLog_FullMethodName, in, opts...)
}

package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "billing.BillingConnectorService"

// BillingConnectorServer is the operator RPC surface. Requests and responses
// are google.protobuf.Struct messages carrying the same fields as the HTTP
// operator API.
type BillingConnectorServer interface {
	Health(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ConfirmBilling(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RequestRefund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ProcessManualCreditNote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv BillingConnectorServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BillingConnectorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(BillingConnectorServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*BillingConnectorServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Health", BillingConnectorServer.Health),
		unaryHandler("Reconcile", BillingConnectorServer.Reconcile),
		unaryHandler("ConfirmBilling", BillingConnectorServer.ConfirmBilling),
		unaryHandler("RequestRefund", BillingConnectorServer.RequestRefund),
		unaryHandler("ProcessManualCreditNote", BillingConnectorServer.ProcessManualCreditNote),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "billing.proto",
}

func RegisterBillingConnectorServer(s grpc.ServiceRegistrar, srv BillingConnectorServer) {
	s.RegisterService(&ServiceDesc, srv)
}

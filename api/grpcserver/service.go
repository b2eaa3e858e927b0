package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the full gRPC service name. Every method takes and
// returns a google.protobuf.Struct.
const ServiceName = "clob.v1.Engine"

// engineServer is checked by grpc against the registered implementation.
type engineServer interface {
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(*Server, context.Context, *structpb.Struct) (*structpb.Struct, error)

var methods = map[string]handlerFunc{
	"CreateAccount":   (*Server).CreateAccount,
	"ExpandAccount":   (*Server).ExpandAccount,
	"SetDelegate":     (*Server).SetDelegate,
	"CloseAccount":    (*Server).CloseAccount,
	"Deposit":         (*Server).Deposit,
	"SettleFunds":     (*Server).SettleFunds,
	"PlaceOrder":      (*Server).PlaceOrder,
	"CancelOrder":     (*Server).CancelOrder,
	"CancelAllOrders": (*Server).CancelAllOrders,
	"GetBook":         (*Server).GetBook,
	"GetAccount":      (*Server).GetAccount,
	"GetMarket":       (*Server).GetMarket,
}

func unary(name string, h handlerFunc) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return h(srv.(*Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return h(srv.(*Server), ctx, req.(*structpb.Struct))
			})
		},
	}
}

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*engineServer)(nil),
		Metadata:    "clob/v1/engine.proto",
	}
	for _, name := range MethodNames() {
		desc.Methods = append(desc.Methods, unary(name, methods[name]))
	}
	return desc
}

// MethodNames lists the service methods in a stable order.
func MethodNames() []string {
	return []string{
		"CreateAccount", "ExpandAccount", "SetDelegate", "CloseAccount",
		"Deposit", "SettleFunds",
		"PlaceOrder", "CancelOrder", "CancelAllOrders",
		"GetBook", "GetAccount", "GetMarket",
	}
}

// Register adds srv to s.
func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(serviceDesc(), srv)
}

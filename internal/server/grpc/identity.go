package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IdentityServiceName = "authkeeper.v1.Identity"
	WhoAmIMethod        = "/" + IdentityServiceName + "/WhoAmI"
)

// identityServer is the handler type of the Identity service.
type identityServer interface {
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

// IdentityService answers WhoAmI with the authenticated user. It relies on
// the auth interceptors having attached a principal.
type IdentityService struct{}

func (IdentityService) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	u, ok := Principal(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.InvalidTokenMessage)
	}

	fields := map[string]any{
		"id":           u.ID,
		"email":        u.Email,
		"display_name": u.DisplayName,
		"is_active":    u.IsActive,
		"created_at":   u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLogin != nil {
		fields["last_login"] = u.LastLogin.UTC().Format(time.RFC3339)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, StatusError(err)
	}
	return out, nil
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(identityServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(identityServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var identityServiceDesc = grpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*identityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authkeeper/v1/identity",
}

// RegisterIdentity mounts IdentityService. Pass it to GRPCServer.Register.
func RegisterIdentity(r grpc.ServiceRegistrar) {
	r.RegisterService(&identityServiceDesc, IdentityService{})
}

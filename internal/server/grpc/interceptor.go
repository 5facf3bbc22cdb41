package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const principalKey ctxKey = "principal"

// publicPrefixes lists services reachable without a token.
var publicPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.v1.ServerReflection/",
	"/grpc.reflection.v1alpha.ServerReflection/",
}

func isPublic(fullMethod string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return true
		}
	}
	return false
}

// Principal returns the user attached by the auth interceptors.
func Principal(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(principalKey).(*models.User)
	return u, ok && u != nil
}

// GRPCCode maps an error kind to a status code.
func GRPCCode(k common.Kind) codes.Code {
	switch k {
	case common.KindConflict:
		return codes.AlreadyExists
	case common.KindUnauthorized:
		return codes.Unauthenticated
	case common.KindForbidden:
		return codes.PermissionDenied
	case common.KindNotFound:
		return codes.NotFound
	case common.KindValidation:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// StatusError converts err into a status error. Unclassified errors lose
// their text.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	var e *common.Error
	if !errors.As(err, &e) {
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, "request timed out")
		}
		return status.Error(codes.Internal, "internal server error")
	}
	return status.Error(GRPCCode(e.Kind), e.Error())
}

func (s *GRPCServer) authenticate(ctx context.Context, fullMethod string) (context.Context, error) {
	if isPublic(fullMethod) {
		return ctx, nil
	}

	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(strings.ToLower(common.AuthorizationHeaderName)); len(values) > 0 {
			header = values[0]
		}
	}

	token, ok := services.ExtractBearer(header)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.InvalidTokenMessage)
	}

	user, err := s.gate.Authenticate(ctx, token)
	if err != nil {
		if common.KindOf(err) == common.KindInternal {
			s.logger.Error(ctx, "grpc auth failed", "method", fullMethod, "error", err)
		}
		return nil, StatusError(err)
	}

	return context.WithValue(ctx, principalKey, user), nil
}

func (s *GRPCServer) unaryAuthInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) streamAuthInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

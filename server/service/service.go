// Package service exposes entitlement records over gRPC. Messages are
// protobuf well-known types so no generated code is needed on either side.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mindmaxed/entitlement-sync/billing/types"
)

const (
	ServiceName = "entitlements.Entitlements"

	HasPlanMethod   = "/" + ServiceName + "/HasPlan"
	GetRecordMethod = "/" + ServiceName + "/GetRecord"

	FieldUserID                  = "userId"
	FieldPlanID                  = "planId"
	FieldHasAnySubscription      = "hasAnySubscription"
	FieldHasPrimaryFeatureAccess = "hasPrimaryFeatureAccess"
	FieldIsWhitelisted           = "isWhitelisted"
	FieldActivePlans             = "activePlans"
)

type recordReader interface {
	ReadRecord(ctx context.Context, userID string) (*types.Record, error)
}

// EntitlementsServer is the server API for the Entitlements service.
type EntitlementsServer interface {
	HasPlan(context.Context, *structpb.Struct) (*wrapperspb.BoolValue, error)
	GetRecord(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

type Server struct {
	store    recordReader
	notFound error
}

// New returns a server reading from store. Errors matching notFound are
// reported as codes.NotFound.
func New(store recordReader, notFound error) *Server {
	return &Server{store: store, notFound: notFound}
}

func Register(s *grpc.Server, srv EntitlementsServer) {
	s.RegisterService(&serviceDesc, srv)
}

func (s *Server) HasPlan(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	fields := req.GetFields()
	userID := strings.TrimSpace(fields[FieldUserID].GetStringValue())
	planID := strings.TrimSpace(fields[FieldPlanID].GetStringValue())
	if userID == "" || planID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId and planId are required")
	}

	r, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}

	return wrapperspb.Bool(lo.Contains(r.ActivePlans, planID)), nil
}

func (s *Server) GetRecord(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	userID := strings.TrimSpace(req.GetValue())
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}

	r, err := s.read(ctx, userID)
	if err != nil {
		return nil, err
	}

	plans := lo.Map(r.ActivePlans, func(p string, _ int) any { return p })
	res, err := structpb.NewStruct(map[string]any{
		FieldUserID:                  r.UserID,
		FieldHasAnySubscription:      r.HasAnySubscription,
		FieldHasPrimaryFeatureAccess: r.HasPrimaryFeatureAccess,
		FieldIsWhitelisted:           r.IsWhitelisted,
		FieldActivePlans:             plans,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding record: %v", err)
	}

	return res, nil
}

func (s *Server) read(ctx context.Context, userID string) (*types.Record, error) {
	r, err := s.store.ReadRecord(ctx, userID)
	if s.notFound != nil && errors.Is(err, s.notFound) {
		return nil, status.Errorf(codes.NotFound, "no entitlement record for %s", userID)
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Error reading entitlement record")
		return nil, status.Error(codes.Unavailable, "entitlement store unavailable")
	}
	return r, nil
}

func hasPlanHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementsServer).HasPlan(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HasPlanMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntitlementsServer).HasPlan(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getRecordHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntitlementsServer).GetRecord(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetRecordMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EntitlementsServer).GetRecord(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EntitlementsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HasPlan", Handler: hasPlanHandler},
		{MethodName: "GetRecord", Handler: getRecordHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "entitlements.proto",
}

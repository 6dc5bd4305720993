package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"commerce-sync-engine/internal/classifier"
	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/middleware"
	"commerce-sync-engine/internal/service"
	"commerce-sync-engine/pkg/jwt"
)

type EventSubmitter interface {
	SubmitAs(ctx context.Context, clientID string, raw domain.RawEvent) (*domain.SyncEvent, error)
}

// Server authenticates connector tokens from the "authorization" metadata
// entry and hands raw events to the ingest service.
type Server struct {
	ingest    EventSubmitter
	jwtSecret string
}

func NewServer(ingest EventSubmitter, jwtSecret string) *Server {
	return &Server{
		ingest:    ingest,
		jwtSecret: jwtSecret,
	}
}

func (s *Server) Ingest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	claims, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if domain.Role(claims.Role) != domain.RoleConnector {
		return nil, status.Error(codes.PermissionDenied, "connector role required")
	}

	raw, err := decodeRawEvent(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid event: %v", err)
	}

	event, err := s.ingest.SubmitAs(ctx, claims.ClientID, raw)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"accepted": true,
		"eventId":  event.ID,
	})
}

func (s *Server) authenticate(ctx context.Context) (*jwt.Claims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization")
	}
	token, ok := middleware.BearerToken(values[0])
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return claims, nil
}

func decodeRawEvent(in *structpb.Struct) (domain.RawEvent, error) {
	var raw domain.RawEvent
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return raw, err
	}
	err = json.Unmarshal(data, &raw)
	return raw, err
}

func toStatus(err error) error {
	var malformed *classifier.MalformedEventError
	switch {
	case errors.As(err, &malformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrPlatformMismatch):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, service.ErrEventDropped):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		log.Printf("[gRPC] ingest failed: %v", err)
		return status.Error(codes.Internal, "ingest failed")
	}
}

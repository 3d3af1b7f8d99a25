package handlers

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/junban/internal/services"
)

// RelationOrderHandler handles relation order service gRPC requests
type RelationOrderHandler struct {
	service services.RelationOrderServiceInterface
}

// NewRelationOrderHandler creates a new RelationOrderHandler
func NewRelationOrderHandler(service services.RelationOrderServiceInterface) *RelationOrderHandler {
	return &RelationOrderHandler{service: service}
}

var _ RelationOrderServiceServer = (*RelationOrderHandler)(nil)

// Reorder handles the Reorder RPC
func (h *RelationOrderHandler) Reorder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	tenantID, err := requestTenant(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	ref, err := protoToRelationRef(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid relation: %v", err)
	}
	batch, err := protoToRelationBatch(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid batch: %v", err)
	}

	result, err := h.service.Reorder(ctx, tenantID, ref, batch)
	if err != nil {
		return nil, toStatus("reorder", err)
	}

	resp, err := reorderResultToProto(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return resp, nil
}

// PreviewOrder handles the PreviewOrder RPC
func (h *RelationOrderHandler) PreviewOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	tenantID, err := requestTenant(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	ref, err := protoToRelationRef(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid relation: %v", err)
	}
	batch, err := protoToRelationBatch(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid batch: %v", err)
	}

	result, err := h.service.PreviewOrder(ctx, tenantID, ref, batch)
	if err != nil {
		return nil, toStatus("preview", err)
	}

	resp, err := reorderResultToProto(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return resp, nil
}

// ReadOrder handles the ReadOrder RPC
func (h *RelationOrderHandler) ReadOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	tenantID, err := requestTenant(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	ref, err := protoToRelationRef(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid relation: %v", err)
	}

	order, err := h.service.ReadOrder(ctx, tenantID, ref)
	if err != nil {
		return nil, toStatus("read order", err)
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"entries": orderedIDsToList(order),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return resp, nil
}

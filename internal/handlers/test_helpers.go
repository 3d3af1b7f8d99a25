package handlers

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/services"
)

// Mock RelationOrderService
type mockRelationOrderService struct {
	reorderFunc func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error)
	previewFunc func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error)
	readFunc    func(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error)
}

func (m *mockRelationOrderService) Reorder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
	if m.reorderFunc != nil {
		return m.reorderFunc(ctx, tenantID, ref, batch)
	}
	return &services.ReorderResult{}, nil
}

func (m *mockRelationOrderService) PreviewOrder(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx, tenantID, ref, batch)
	}
	return &services.ReorderResult{}, nil
}

func (m *mockRelationOrderService) ReadOrder(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
	if m.readFunc != nil {
		return m.readFunc(ctx, tenantID, ref)
	}
	return nil, nil
}

// mustStruct builds a request document or panics
func mustStruct(m map[string]interface{}) *structpb.Struct {
	s, err := structpb.NewStruct(m)
	if err != nil {
		panic(err)
	}
	return s
}

func articleTags() map[string]interface{} {
	return map[string]interface{}{
		"owner_type": "article",
		"owner_id":   "42",
		"field":      "tags",
	}
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/services"
	"github.com/asakaida/junban/internal/services/ordering"
)

func TestRelationOrderHandler_Reorder_DecodesRequest(t *testing.T) {
	var gotTenant string
	var gotRef *entities.RelationRef
	var gotBatch *entities.RelationBatch

	handler := NewRelationOrderHandler(&mockRelationOrderService{
		reorderFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
			gotTenant, gotRef, gotBatch = tenantID, ref, batch
			return &services.ReorderResult{
				OrderMap:  entities.OrderMap{"4": 1.5},
				Entries:   []entities.OrderedID{{ID: "1", Order: 1}, {ID: "4", Order: 2}},
				SnapToken: "w100",
			}, nil
		},
	})

	req := mustStruct(map[string]interface{}{
		"relation":   articleTags(),
		"disconnect": []interface{}{"7", 8},
		"connect": []interface{}{
			map[string]interface{}{"id": "4", "position": map[string]interface{}{"after": "1"}},
			map[string]interface{}{"id": "5", "position": map[string]interface{}{"before": 2}},
			map[string]interface{}{"id": "6", "position": map[string]interface{}{"start": true}},
			map[string]interface{}{"id": "9", "position": map[string]interface{}{"end": true}},
			"10",
		},
	})

	resp, err := handler.Reorder(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotTenant != "default" {
		t.Errorf("expected tenant ID 'default', got %s", gotTenant)
	}
	wantRef := &entities.RelationRef{OwnerType: "article", OwnerID: "42", Field: "tags"}
	if !reflect.DeepEqual(gotRef, wantRef) {
		t.Errorf("ref = %+v, want %+v", gotRef, wantRef)
	}
	wantBatch := &entities.RelationBatch{
		Disconnect: []string{"7", "8"},
		Connect: []entities.RelationMutation{
			{ID: "4", Position: entities.Position{After: "1"}},
			{ID: "5", Position: entities.Position{Before: "2"}},
			{ID: "6", Position: entities.Position{Start: true}},
			{ID: "9", Position: entities.Position{End: true}},
			{ID: "10"},
		},
	}
	if !reflect.DeepEqual(gotBatch, wantBatch) {
		t.Errorf("batch = %+v, want %+v", gotBatch, wantBatch)
	}

	fields := resp.GetFields()
	if got := fields["order_map"].GetStructValue().GetFields()["4"].GetNumberValue(); got != 1.5 {
		t.Errorf("order_map[4] = %v, want 1.5", got)
	}
	entries := fields["entries"].GetListValue().GetValues()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	second := entries[1].GetStructValue().GetFields()
	if second["id"].GetStringValue() != "4" || second["order"].GetNumberValue() != 2 {
		t.Errorf("entries[1] = %v, want {id:4 order:2}", second)
	}
	if fields["snap_token"].GetStringValue() != "w100" {
		t.Errorf("snap_token = %v, want w100", fields["snap_token"])
	}
}

func TestRelationOrderHandler_Reorder_TenantID(t *testing.T) {
	var gotTenant string
	handler := NewRelationOrderHandler(&mockRelationOrderService{
		reorderFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
			gotTenant = tenantID
			return &services.ReorderResult{}, nil
		},
	})

	_, err := handler.Reorder(context.Background(), mustStruct(map[string]interface{}{
		"tenant_id":  "acme",
		"relation":   articleTags(),
		"disconnect": []interface{}{"1"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTenant != "acme" {
		t.Errorf("expected tenant ID 'acme', got %s", gotTenant)
	}
}

func TestRelationOrderHandler_Reorder_InvalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  map[string]interface{}
	}{
		{
			name: "異常系: relationなし",
			req:  map[string]interface{}{"disconnect": []interface{}{"1"}},
		},
		{
			name: "異常系: relationが文字列",
			req:  map[string]interface{}{"relation": "article:42#tags"},
		},
		{
			name: "異常系: disconnectがリストでない",
			req:  map[string]interface{}{"relation": articleTags(), "disconnect": "1"},
		},
		{
			name: "異常系: connectにidなし",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect":  []interface{}{map[string]interface{}{"position": map[string]interface{}{"start": true}}},
			},
		},
		{
			name: "異常系: 未知の位置指定",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect": []interface{}{
					map[string]interface{}{"id": "1", "position": map[string]interface{}{"middle": true}},
				},
			},
		},
		{
			name: "異常系: startが真偽値でない",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect": []interface{}{
					map[string]interface{}{"id": "1", "position": map[string]interface{}{"start": "yes"}},
				},
			},
		},
		{
			name: "異常系: endが数値",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect": []interface{}{
					map[string]interface{}{"id": "1", "position": map[string]interface{}{"end": 1}},
				},
			},
		},
		{
			name: "異常系: beforeのアンカーが空",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect": []interface{}{
					map[string]interface{}{"id": "1", "position": map[string]interface{}{"before": ""}},
				},
			},
		},
		{
			name: "異常系: afterのアンカーが空",
			req: map[string]interface{}{
				"relation": articleTags(),
				"connect": []interface{}{
					map[string]interface{}{"id": "1", "position": map[string]interface{}{"after": ""}},
				},
			},
		},
		{
			name: "異常系: idが真偽値",
			req:  map[string]interface{}{"relation": articleTags(), "disconnect": []interface{}{true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewRelationOrderHandler(&mockRelationOrderService{
				reorderFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
					called = true
					return &services.ReorderResult{}, nil
				},
			})

			_, err := handler.Reorder(context.Background(), mustStruct(tt.req))
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("expected InvalidArgument, got %v", err)
			}
			if called {
				t.Error("service should not be called for an undecodable request")
			}
		})
	}
}

func TestRelationOrderHandler_Reorder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{
			name:     "異常系: アンカーなし",
			err:      &ordering.ReferenceError{ID: "4", Position: entities.Position{After: "x"}, Kind: entities.PositionAfter},
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: 検証エラー",
			err:      fmt.Errorf("%w: tenant ID is required", services.ErrInvalidArgument),
			wantCode: codes.InvalidArgument,
		},
		{
			name:     "異常系: 重複ID",
			err:      fmt.Errorf("%w: \"4\" still present after disconnect", ordering.ErrDuplicateID),
			wantCode: codes.Internal,
		},
		{
			name:     "異常系: ストレージエラー",
			err:      errors.New("database connection failed"),
			wantCode: codes.Internal,
		},
		{
			name:     "異常系: キャンセル",
			err:      fmt.Errorf("failed to load relation order: %w", context.Canceled),
			wantCode: codes.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRelationOrderHandler(&mockRelationOrderService{
				reorderFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
					return nil, tt.err
				},
			})

			_, err := handler.Reorder(context.Background(), mustStruct(map[string]interface{}{
				"relation":   articleTags(),
				"disconnect": []interface{}{"1"},
			}))
			if status.Code(err) != tt.wantCode {
				t.Errorf("expected %v, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestRelationOrderHandler_PreviewOrder(t *testing.T) {
	handler := NewRelationOrderHandler(&mockRelationOrderService{
		previewFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef, batch *entities.RelationBatch) (*services.ReorderResult, error) {
			if len(batch.Connect) != 1 || batch.Connect[0].Position.After != "1" {
				t.Errorf("unexpected batch %+v", batch)
			}
			return &services.ReorderResult{
				OrderMap: entities.OrderMap{"4": 1.5},
				Entries:  []entities.OrderedID{{ID: "1", Order: 1}, {ID: "4", Order: 1.5}},
			}, nil
		},
	})

	resp, err := handler.PreviewOrder(context.Background(), mustStruct(map[string]interface{}{
		"relation": articleTags(),
		"connect": []interface{}{
			map[string]interface{}{"id": "4", "position": map[string]interface{}{"after": "1"}},
		},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resp.GetFields()["snap_token"]; ok {
		t.Error("preview response should not carry a snap_token")
	}
	if got := resp.GetFields()["order_map"].GetStructValue().GetFields()["4"].GetNumberValue(); got != 1.5 {
		t.Errorf("order_map[4] = %v, want 1.5", got)
	}
}

func TestRelationOrderHandler_ReadOrder(t *testing.T) {
	t.Run("正常系: 保存済みの順序を返す", func(t *testing.T) {
		handler := NewRelationOrderHandler(&mockRelationOrderService{
			readFunc: func(ctx context.Context, tenantID string, ref *entities.RelationRef) ([]entities.OrderedID, error) {
				return []entities.OrderedID{{ID: "b", Order: 1}, {ID: "a", Order: 2}}, nil
			},
		})

		resp, err := handler.ReadOrder(context.Background(), mustStruct(map[string]interface{}{
			"relation": articleTags(),
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries := resp.GetFields()["entries"].GetListValue().GetValues()
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].GetStructValue().GetFields()["id"].GetStringValue() != "b" {
			t.Errorf("entries[0] = %v, want b", entries[0])
		}
	})

	t.Run("異常系: nilリクエスト", func(t *testing.T) {
		handler := NewRelationOrderHandler(&mockRelationOrderService{})
		_, err := handler.ReadOrder(context.Background(), nil)
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("expected InvalidArgument, got %v", err)
		}
	})
}

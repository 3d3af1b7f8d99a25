package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/junban/internal/entities"
	"github.com/asakaida/junban/internal/services"
	"github.com/asakaida/junban/internal/services/ordering"
)

// === Request decoding ===

// requestTenant returns tenant_id, defaulting to "default"
func requestTenant(req *structpb.Struct) (string, error) {
	v, ok := req.GetFields()["tenant_id"]
	if !ok {
		return "default", nil
	}
	tenantID, err := stringValue(v)
	if err != nil {
		return "", fmt.Errorf("tenant_id: %v", err)
	}
	if tenantID == "" {
		return "default", nil
	}
	return tenantID, nil
}

func protoToRelationRef(req *structpb.Struct) (*entities.RelationRef, error) {
	v, ok := req.GetFields()["relation"]
	if !ok {
		return nil, fmt.Errorf("relation is required")
	}
	rel := v.GetStructValue()
	if rel == nil {
		return nil, fmt.Errorf("relation must be an object")
	}

	var ref entities.RelationRef
	for name, dst := range map[string]*string{
		"owner_type": &ref.OwnerType,
		"owner_id":   &ref.OwnerID,
		"field":      &ref.Field,
	} {
		fv, ok := rel.GetFields()[name]
		if !ok {
			continue
		}
		s, err := stringValue(fv)
		if err != nil {
			return nil, fmt.Errorf("relation.%s: %v", name, err)
		}
		*dst = s
	}
	return &ref, nil
}

func protoToRelationBatch(req *structpb.Struct) (*entities.RelationBatch, error) {
	batch := &entities.RelationBatch{}
	fields := req.GetFields()

	if v, ok := fields["disconnect"]; ok {
		list := v.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("disconnect must be a list")
		}
		for i, item := range list.GetValues() {
			id, err := stringValue(item)
			if err != nil {
				return nil, fmt.Errorf("disconnect[%d]: %v", i, err)
			}
			batch.Disconnect = append(batch.Disconnect, id)
		}
	}

	if v, ok := fields["connect"]; ok {
		list := v.GetListValue()
		if list == nil {
			return nil, fmt.Errorf("connect must be a list")
		}
		for i, item := range list.GetValues() {
			m, err := protoToRelationMutation(item)
			if err != nil {
				return nil, fmt.Errorf("connect[%d]: %v", i, err)
			}
			batch.Connect = append(batch.Connect, m)
		}
	}

	return batch, nil
}

// protoToRelationMutation accepts either a bare ID (appended) or {id, position}
func protoToRelationMutation(v *structpb.Value) (entities.RelationMutation, error) {
	obj := v.GetStructValue()
	if obj == nil {
		id, err := stringValue(v)
		if err != nil {
			return entities.RelationMutation{}, err
		}
		return entities.RelationMutation{ID: id}, nil
	}

	idValue, ok := obj.GetFields()["id"]
	if !ok {
		return entities.RelationMutation{}, fmt.Errorf("id is required")
	}
	id, err := stringValue(idValue)
	if err != nil {
		return entities.RelationMutation{}, fmt.Errorf("id: %v", err)
	}

	m := entities.RelationMutation{ID: id}
	pv, ok := obj.GetFields()["position"]
	if !ok {
		return m, nil
	}
	pos := pv.GetStructValue()
	if pos == nil {
		return entities.RelationMutation{}, fmt.Errorf("position must be an object")
	}

	for name, field := range pos.GetFields() {
		switch name {
		case "before", "after":
			anchor, err := stringValue(field)
			if err != nil {
				return entities.RelationMutation{}, fmt.Errorf("position.%s: %v", name, err)
			}
			if anchor == "" {
				return entities.RelationMutation{}, fmt.Errorf("position.%s: anchor ID is required", name)
			}
			if name == "before" {
				m.Position.Before = anchor
			} else {
				m.Position.After = anchor
			}
		case "start", "end":
			flag, err := boolValue(field)
			if err != nil {
				return entities.RelationMutation{}, fmt.Errorf("position.%s: %v", name, err)
			}
			if name == "start" {
				m.Position.Start = flag
			} else {
				m.Position.End = flag
			}
		default:
			return entities.RelationMutation{}, fmt.Errorf("unknown position field %q", name)
		}
	}
	return m, nil
}

// stringValue reads an ID-like value. Integral numbers are accepted and formatted without exponent.
func stringValue(v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NumberValue:
		return strconv.FormatFloat(k.NumberValue, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected string, got %T", k)
	}
}

func boolValue(v *structpb.Value) (bool, error) {
	b, ok := v.GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", v.GetKind())
	}
	return b.BoolValue, nil
}

// === Response encoding ===

func reorderResultToProto(result *services.ReorderResult) (*structpb.Struct, error) {
	orderMap := make(map[string]interface{}, len(result.OrderMap))
	for id, order := range result.OrderMap {
		orderMap[id] = order
	}

	resp := map[string]interface{}{
		"order_map": orderMap,
		"entries":   orderedIDsToList(result.Entries),
	}
	if result.SnapToken != "" {
		resp["snap_token"] = result.SnapToken
	}
	return structpb.NewStruct(resp)
}

func orderedIDsToList(order []entities.OrderedID) []interface{} {
	entries := make([]interface{}, len(order))
	for i, o := range order {
		entries[i] = map[string]interface{}{
			"id":    o.ID,
			"order": o.Order,
		}
	}
	return entries
}

// === Error mapping ===

// toStatus converts a service error to a gRPC status error
func toStatus(op string, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ordering.ErrReferenceNotFound):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "%s failed: %v", op, err)
	}
}

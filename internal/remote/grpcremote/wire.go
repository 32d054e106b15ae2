// Package grpcremote carries the remote.Client protocol over gRPC.
//
// There is no generated code: requests and responses are protobuf well-known
// types (structpb.Struct, structpb.ListValue, emptypb.Empty) so a row keeps
// its JSON shape end to end. Register exposes any remote.Client as a gRPC
// service; Client is the matching caller.
//
//	Upsert  Struct{collection, row}          -> Empty
//	Delete  Struct{collection, id}           -> Empty
//	Fetch   Struct{collection, limit}        -> ListValue of row structs
//	Ping    Empty                            -> Empty
package grpcremote

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "vplm.remote.v1.Remote"

const (
	MethodUpsert = "/" + ServiceName + "/Upsert"
	MethodDelete = "/" + ServiceName + "/Delete"
	MethodFetch  = "/" + ServiceName + "/Fetch"
	MethodPing   = "/" + ServiceName + "/Ping"
)

var errBadRequest = errors.New("malformed request")

func encodeRow(row json.RawMessage) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(row, s); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeRow(s *structpb.Struct) (json.RawMessage, error) {
	b, err := protojson.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func upsertRequest(collection string, row json.RawMessage) (*structpb.Struct, error) {
	r, err := encodeRow(row)
	if err != nil {
		return nil, fmt.Errorf("encode %s row: %w", collection, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"collection": structpb.NewStringValue(collection),
		"row":        structpb.NewStructValue(r),
	}}, nil
}

func deleteRequest(collection, id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"collection": structpb.NewStringValue(collection),
		"id":         structpb.NewStringValue(id),
	}}
}

func fetchRequest(collection string, limit int) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"collection": structpb.NewStringValue(collection),
		"limit":      structpb.NewNumberValue(float64(limit)),
	}}
}

func fetchResponse(rows []json.RawMessage) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(rows))}
	for _, row := range rows {
		s, err := encodeRow(row)
		if err != nil {
			return nil, err
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

func fetchRows(l *structpb.ListValue) ([]json.RawMessage, error) {
	rows := make([]json.RawMessage, 0, len(l.GetValues()))
	for _, v := range l.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("%w: fetch row is not an object", errBadRequest)
		}
		row, err := decodeRow(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func stringField(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", errBadRequest, name)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || str.StringValue == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", errBadRequest, name)
	}
	return str.StringValue, nil
}

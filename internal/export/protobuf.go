package export

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/synheart/vitalsynth/internal/models"
)

// ProtobufEncoder encodes readings as a google.protobuf.ListValue whose elements are
// Structs keyed by column name. Any protobuf runtime can decode it without a schema.
type ProtobufEncoder struct{}

func NewProtobufEncoder() *ProtobufEncoder {
	return &ProtobufEncoder{}
}

func (e *ProtobufEncoder) Encode(readings []models.Reading) ([]byte, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(readings))}
	for _, r := range readings {
		s, err := readingToStruct(r)
		if err != nil {
			return nil, fmt.Errorf("failed to convert reading %s: %w", r.ID, err)
		}
		list.Values = append(list.Values, structpb.NewStructValue(s))
	}
	return proto.Marshal(list)
}

func (e *ProtobufEncoder) ContentType() string {
	return "application/x-protobuf"
}

func (e *ProtobufEncoder) Extension() string {
	return "pb"
}

func readingToStruct(r models.Reading) (*structpb.Struct, error) {
	fields := make(map[string]interface{}, len(columns))
	for i, v := range row(r) {
		if s, ok := v.(string); ok && s == "" && columns[i] == "glucose" {
			continue
		}
		fields[columns[i]] = v
	}
	return structpb.NewStruct(fields)
}

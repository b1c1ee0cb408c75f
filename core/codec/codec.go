package codec

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// ErrNotProtoMessage is returned by Proto for values that are not messages
var ErrNotProtoMessage = errors.New("value does not implement proto.Message")

// Codec encodes handler results into textual response content
type Codec interface {
	// Encode encodes a value to bytes
	Encode(v any) ([]byte, error)

	// ContentType is the media type of the encoded bytes
	ContentType() string

	// Name returns the codec name
	Name() string
}

// JSON encodes arbitrary values as JSON
type JSON struct{}

func (JSON) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) ContentType() string {
	return "application/json"
}

func (JSON) Name() string {
	return "json"
}

// Proto encodes protobuf messages in their canonical JSON mapping, keeping
// the response content textual
type Proto struct {
	Options protojson.MarshalOptions
}

func (c Proto) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotProtoMessage, v)
	}
	return c.Options.Marshal(msg)
}

func (Proto) ContentType() string {
	return "application/json"
}

func (Proto) Name() string {
	return "protojson"
}

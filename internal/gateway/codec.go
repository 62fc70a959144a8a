package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/dawret/knxgw/internal/datapoint"
	"github.com/dawret/knxgw/internal/frame"
)

// statePayload is the JSON shape published to a device's state topic and
// expected on its command topic.
type statePayload struct {
	Value any `json:"value"`
}

// decodeValue turns a GroupValueWrite/Response indication's raw payload
// into the Go value a statePayload.Value should carry, per the device's
// configured DPT.
func decodeValue(dpt string, shortData uint8, data []byte) (any, error) {
	switch dpt {
	case "bool":
		return bool(datapoint.DecodeBool(shortData)), nil
	case "byte":
		b, err := datapoint.DecodeByte(data)
		if err != nil {
			return nil, err
		}
		return uint8(b), nil
	case "percentage":
		return datapoint.DecodePercentage(data)
	case "float2byte":
		return datapoint.DecodeFloat2Byte(data)
	case "scene":
		return datapoint.DecodeScene(data)
	case "rgb":
		rgb, err := datapoint.DecodeRGB(data)
		if err != nil {
			return nil, err
		}
		return rgb, nil
	default:
		return nil, fmt.Errorf("gateway: unknown dpt %q", dpt)
	}
}

// encodeValue builds the frame.DataPoint for a command-topic payload's
// value, per the device's configured DPT.
func encodeValue(dpt string, value any) (frame.DataPoint, error) {
	switch dpt {
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("gateway: dpt %q expects a bool value", dpt)
		}
		return datapoint.Bool(b), nil
	case "byte":
		n, err := asNumber(value)
		if err != nil {
			return nil, err
		}
		return datapoint.Byte(n), nil
	case "percentage":
		n, err := asNumber(value)
		if err != nil {
			return nil, err
		}
		return datapoint.EncodePercentage(uint8(n)), nil
	case "float2byte":
		n, ok := value.(float64)
		if !ok {
			return nil, fmt.Errorf("gateway: dpt %q expects a numeric value", dpt)
		}
		return datapoint.EncodeFloat2Byte(n)
	case "scene":
		n, err := asNumber(value)
		if err != nil {
			return nil, err
		}
		return datapoint.EncodeScene(uint8(n)), nil
	case "rgb":
		rgb, err := asRGB(value)
		if err != nil {
			return nil, err
		}
		return datapoint.EncodeRGB(rgb), nil
	default:
		return nil, fmt.Errorf("gateway: unknown dpt %q", dpt)
	}
}

func asNumber(value any) (uint8, error) {
	n, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("gateway: expected a numeric value, got %T", value)
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("gateway: value %v out of byte range", n)
	}
	return uint8(n), nil
}

func asRGB(value any) (datapoint.RGB, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return datapoint.RGB{}, fmt.Errorf("gateway: dpt %q expects an {r,g,b} object", "rgb")
	}
	r, rErr := asNumber(m["r"])
	g, gErr := asNumber(m["g"])
	b, bErr := asNumber(m["b"])
	if rErr != nil || gErr != nil || bErr != nil {
		return datapoint.RGB{}, fmt.Errorf("gateway: rgb value requires numeric r, g, b fields")
	}
	return datapoint.RGB{R: r, G: g, B: b}, nil
}

// marshalState encodes a decoded value as a statePayload.
func marshalState(value any) ([]byte, error) {
	return json.Marshal(statePayload{Value: value})
}

// unmarshalCommand decodes a command-topic payload into its raw value.
func unmarshalCommand(payload []byte) (any, error) {
	var p statePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("gateway: decoding command payload: %w", err)
	}
	return p.Value, nil
}

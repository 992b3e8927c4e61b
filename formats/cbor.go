package formats

import (
	"fmt"
	"reflect"

	"logsink/models"

	"github.com/fxamacker/cbor/v2"
)

// CBOR decodes a CBOR map carrying the same five text-string keys as the
// JSON wire format. Unknown keys are ignored.
var CBOR Decoder = newCBORDecoder()

type cborDecoder struct {
	decMode cbor.DecMode
}

func newCBORDecoder() *cborDecoder {
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Datagrams are small; anything deeper than this is not a log event.
		MaxNestedLevels: 16,
		UTF8:            cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic("formats: CBOR decoder initialization failed: " + err.Error())
	}
	return &cborDecoder{decMode: decMode}
}

func (d *cborDecoder) Name() string { return "cbor" }

func (d *cborDecoder) Decode(payload []byte) (models.LogEvent, error) {
	var fields map[string]any
	if err := d.decMode.Unmarshal(payload, &fields); err != nil {
		return models.LogEvent{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if fields == nil {
		return models.LogEvent{}, fmt.Errorf("%w: payload is not a CBOR map", ErrDecode)
	}

	field := func(name string) (string, error) {
		raw, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("%w: missing field %q", ErrDecode, name)
		}
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("%w: field %q is %T, not a string", ErrDecode, name, raw)
		}
		return s, nil
	}

	var (
		event models.LogEvent
		err   error
	)
	if event.Timestamp, err = field("timestamp"); err != nil {
		return models.LogEvent{}, err
	}
	if event.App, err = field("app"); err != nil {
		return models.LogEvent{}, err
	}
	if event.Host, err = field("host"); err != nil {
		return models.LogEvent{}, err
	}
	if event.Filename, err = field("filename"); err != nil {
		return models.LogEvent{}, err
	}
	if event.Log, err = field("log"); err != nil {
		return models.LogEvent{}, err
	}
	return event, nil
}

// EncodeCBOR renders event as a CBOR map with deterministic key order.
func EncodeCBOR(event models.LogEvent) ([]byte, error) {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return encMode.Marshal(event)
}

package formats

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"logsink/models"

	"github.com/valyala/fastjson"
)

// JSON decodes the default wire format: one UTF-8 JSON object per datagram
// with the string fields timestamp, app, host, filename and log.
// Unknown fields are ignored.
var JSON Decoder = &jsonDecoder{}

type jsonDecoder struct {
	parsers fastjson.ParserPool
}

func (d *jsonDecoder) Name() string { return "json" }

func (d *jsonDecoder) Decode(payload []byte) (models.LogEvent, error) {
	if !utf8.Valid(payload) {
		return models.LogEvent{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}

	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(payload)
	if err != nil {
		return models.LogEvent{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	obj, err := v.Object()
	if err != nil {
		return models.LogEvent{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	field := func(name string) (string, error) {
		fv := obj.Get(name)
		if fv == nil {
			return "", fmt.Errorf("%w: missing field %q", ErrDecode, name)
		}
		b, err := fv.StringBytes()
		if err != nil {
			return "", fmt.Errorf("%w: field %q: %w", ErrDecode, name, err)
		}
		// Escape sequences are decoded by fastjson, so check the result again.
		if !utf8.Valid(b) {
			return "", fmt.Errorf("%w: field %q is not valid UTF-8", ErrDecode, name)
		}
		return string(b), nil
	}

	var event models.LogEvent
	targets := []struct {
		name string
		dst  *string
	}{
		{"timestamp", &event.Timestamp},
		{"app", &event.App},
		{"host", &event.Host},
		{"filename", &event.Filename},
		{"log", &event.Log},
	}
	for _, t := range targets {
		s, err := field(t.name)
		if err != nil {
			return models.LogEvent{}, err
		}
		*t.dst = s
	}

	return event, nil
}

// EncodeJSON renders event in the JSON wire format.
func EncodeJSON(event models.LogEvent) ([]byte, error) {
	return json.Marshal(event)
}

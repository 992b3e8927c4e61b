package formats

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"logsink/models"
)

// ErrDecode is returned when a datagram cannot be turned into a LogEvent.
var ErrDecode = errors.New("decode error")

// Decoder turns a raw datagram payload into a LogEvent.
type Decoder interface {
	// Decode parses payload into a LogEvent.
	// Returns an error wrapping ErrDecode if the payload is rejected.
	Decode(payload []byte) (models.LogEvent, error)

	// Name returns the name of the format this decoder handles.
	Name() string
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Decoder)
)

// RegisterDecoder adds a decoder to the registry under its Name.
func RegisterDecoder(d Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Name()] = d
}

// GetDecoder returns the decoder registered for name.
func GetDecoder(name string) (Decoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown log format %q", name)
	}
	return d, nil
}

// Names lists the registered format names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// chain tries each decoder in order and returns the first success.
type chain struct {
	name     string
	decoders []Decoder
}

// Chain returns a decoder that tries decoders in order.
func Chain(name string, decoders ...Decoder) Decoder {
	return &chain{name: name, decoders: decoders}
}

func (c *chain) Name() string { return c.name }

func (c *chain) Decode(payload []byte) (models.LogEvent, error) {
	var errs []error
	for _, d := range c.decoders {
		event, err := d.Decode(payload)
		if err == nil {
			return event, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", d.Name(), err))
	}
	return models.LogEvent{}, fmt.Errorf("%w: no format matched: %w", ErrDecode, errors.Join(errs...))
}

func init() {
	RegisterDecoder(JSON)
	RegisterDecoder(RFC5424)
	RegisterDecoder(CBOR)
	RegisterDecoder(Chain("auto", JSON, RFC5424))
}

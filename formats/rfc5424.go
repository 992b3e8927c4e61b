package formats

import (
	"bytes"
	"fmt"
	"time"
	"unicode/utf8"

	"logsink/models"

	"github.com/leodido/go-syslog/v4/rfc5424"
)

// RFC5424 decodes a syslog line into a LogEvent.
//
// HOSTNAME maps to host, APP-NAME to app and MSGID to filename; missing
// header fields become "-". A missing TIMESTAMP is replaced with the time of
// reception. MSG is required.
var RFC5424 Decoder = rfc5424Decoder{}

type rfc5424Decoder struct{}

func (rfc5424Decoder) Name() string { return "rfc5424" }

func (rfc5424Decoder) Decode(payload []byte) (models.LogEvent, error) {
	if !utf8.Valid(payload) {
		return models.LogEvent{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrDecode)
	}

	msg, err := ParseRFC5424Message(bytes.TrimSpace(payload))
	if err != nil {
		return models.LogEvent{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return SyslogMessageToLogEvent(msg)
}

// ParseRFC5424Message parses an RFC5424 syslog message
func ParseRFC5424Message(message []byte) (*rfc5424.SyslogMessage, error) {
	// The parser keeps state between calls, so each message gets its own.
	parser := rfc5424.NewParser(rfc5424.WithBestEffort())

	syslogMsg, err := parser.Parse(message)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RFC5424 message: %w", err)
	}

	rfc5424Msg, ok := syslogMsg.(*rfc5424.SyslogMessage)
	if !ok {
		return nil, fmt.Errorf("parsed message is not a valid RFC5424 message")
	}

	return rfc5424Msg, nil
}

// SyslogMessageToLogEvent converts a parsed syslog message to a LogEvent.
func SyslogMessageToLogEvent(msg *rfc5424.SyslogMessage) (models.LogEvent, error) {
	if msg.Message == nil {
		return models.LogEvent{}, fmt.Errorf("%w: syslog message has no MSG part", ErrDecode)
	}

	// Use current time if timestamp is missing
	ts := time.Now().UTC()
	if msg.Timestamp != nil {
		ts = *msg.Timestamp
	}

	return models.LogEvent{
		Timestamp: ts.Format(time.RFC3339Nano),
		App:       valueOrDash(msg.Appname),
		Host:      valueOrDash(msg.Hostname),
		Filename:  valueOrDash(msg.MsgID),
		Log:       *msg.Message,
	}, nil
}

func valueOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

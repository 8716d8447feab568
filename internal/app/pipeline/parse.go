package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultChannel receives single-value payloads that carry no channel hint.
const DefaultChannel = "default"

// ErrUnreadablePayload is matched by every IngestError.
var ErrUnreadablePayload = errors.New("pipeline: unreadable payload")

var errNotFinite = errors.New("value is not finite")

// TokenError describes one payload field that could not be parsed. Sibling
// fields of the same payload are unaffected.
type TokenError struct {
	Index     int
	ChannelID string
	Token     string
	Err       error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token %d (%s) %q: %v", e.Index, e.ChannelID, e.Token, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// IngestError reports a payload that yielded no value at all. Nothing was
// committed for it.
type IngestError struct {
	ChannelHint string
	Payload     string
	Tokens      []*TokenError
}

func (e *IngestError) Error() string {
	if len(e.Tokens) == 0 {
		return fmt.Sprintf("%v: %q", ErrUnreadablePayload, e.Payload)
	}
	return fmt.Sprintf("%v: %q (%d bad tokens)", ErrUnreadablePayload, e.Payload, len(e.Tokens))
}

func (e *IngestError) Unwrap() error { return ErrUnreadablePayload }

// Value is a parsed number routed to a channel.
type Value struct {
	ChannelID string
	Value     float64
}

// ChannelFor resolves the channel of field index out of total fields.
//
// An explicit hint always wins. Single-value payloads go to the hint, or to
// DefaultChannel without one. Multi-value payloads use positional ids p0,
// p1, ... prefixed by the hint when there is one ("imu.p0").
func ChannelFor(hint string, index, total int) string {
	if total == 1 {
		if hint != "" {
			return hint
		}
		return DefaultChannel
	}
	pos := "p" + strconv.Itoa(index)
	if hint != "" {
		return hint + "." + pos
	}
	return pos
}

// ParsePayload splits a text payload into values. It never fails as a whole:
// callers treat an empty value list as an unreadable payload.
func ParsePayload(hint string, raw []byte) ([]Value, []*TokenError) {
	text := strings.TrimRight(string(raw), "\x00")
	if !utf8.ValidString(text) || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	fields := strings.Split(text, ",")
	values := make([]Value, 0, len(fields))
	var bad []*TokenError

	for i, field := range fields {
		ch := ChannelFor(hint, i, len(fields))
		tok := strings.TrimSpace(field)

		v, err := strconv.ParseFloat(tok, 64)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = errNotFinite
		}
		if err != nil {
			bad = append(bad, &TokenError{Index: i, ChannelID: ch, Token: tok, Err: unwrapNumError(err)})
			continue
		}
		values = append(values, Value{ChannelID: ch, Value: v})
	}
	return values, bad
}

func unwrapNumError(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}

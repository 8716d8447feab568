package forward

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/ghalamif/sensorhub/internal/domain"
	"github.com/ghalamif/sensorhub/internal/ports"
)

type NATSPublisher struct {
	Conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(url, subjectPrefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("sensorhub"))
	if err != nil {
		return nil, err
	}
	if subjectPrefix == "" {
		subjectPrefix = "sensorhub.readings"
	}
	return &NATSPublisher{Conn: conn, prefix: subjectPrefix}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

// Publish sends one message per reading on <prefix>.<channel>.
func (p *NATSPublisher) Publish(_ context.Context, batch []domain.Reading) error {
	for _, r := range batch {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if err := p.Conn.Publish(Subject(p.prefix, r.ChannelID), data); err != nil {
			return err
		}
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.Conn == nil {
		return nil
	}
	err := p.Conn.Drain()
	p.Conn.Close()
	return err
}

// Subject builds a NATS subject, replacing characters that NATS treats as
// wildcards or separators inside a token.
func Subject(prefix, channelID string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, channelID)
	if token == "" {
		token = "_"
	}
	return prefix + "." + token
}

var _ ports.Publisher = (*NATSPublisher)(nil)

package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/ghalamif/sensorhub/internal/ports"
)

func TestChannelHint(t *testing.T) {
	cfg := Config{ChannelFromTopic: true}
	if got := ChannelHint(cfg, "lab/node1/temp"); got != "temp" {
		t.Fatalf("expected temp, got %q", got)
	}
	if got := ChannelHint(cfg, "flat"); got != "flat" {
		t.Fatalf("expected flat, got %q", got)
	}

	cfg = Config{Channel: "imu"}
	if got := ChannelHint(cfg, "lab/node1/accel"); got != "imu" {
		t.Fatalf("expected configured channel, got %q", got)
	}
	if got := ChannelHint(Config{}, "lab/x"); got != "" {
		t.Fatalf("expected empty hint, got %q", got)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Topic: "x"}); err == nil {
		t.Fatal("expected error without broker")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883"}); err == nil {
		t.Fatal("expected error without topic")
	}
	if _, err := New(Config{BrokerURL: "tcp://localhost:1883", Topic: "x", QoS: 3}); err == nil {
		t.Fatal("expected error for qos 3")
	}
	tr, err := New(Config{BrokerURL: "tcp://localhost:1883", Topic: "sensors/#"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tr.cfg.ClientID != "sensorhub" || tr.cfg.DeviceName != "MQTT tcp://localhost:1883" {
		t.Fatalf("defaults not applied: %+v", tr.cfg)
	}
}

func TestClassify(t *testing.T) {
	bg := context.Background()
	cancelled, cancel := context.WithCancel(bg)
	cancel()

	cases := []struct {
		name string
		ctx  context.Context
		err  error
		want ports.TransportErrorKind
	}{
		{"not authorised", bg, fmt.Errorf("mqtt connect: %w", packets.ErrorRefusedNotAuthorised), ports.PermissionDenied},
		{"bad credentials", bg, packets.ErrorRefusedBadUsernameOrPassword, ports.PermissionDenied},
		{"network", bg, packets.ErrorNetworkError, ports.NotFound},
		{"dial", bg, &net.OpError{Op: "dial", Err: errors.New("refused")}, ports.NotFound},
		{"cancelled", cancelled, context.Canceled, ports.Cancelled},
		{"other", bg, packets.ErrorRefusedBadProtocolVersion, ports.OtherFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ports.TransportErrorKindOf(classify(tc.ctx, tc.err)); got != tc.want {
				t.Fatalf("want %s, got %s", tc.want, got)
			}
		})
	}
}

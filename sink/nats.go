package sink

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of a NATS connection the mirror needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsMirror publishes result lines on a subject so other processes can
// follow a batch live.
type NatsMirror struct {
	pub     Publisher
	subject string
	nc      *nats.Conn
}

// DialNats connects to a NATS server.
func DialNats(url, subject string) (*NatsMirror, error) {
	nc, err := nats.Connect(url,
		nats.Name("trialrunner"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats-disconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("nats-connected")
	return &NatsMirror{pub: nc, subject: subject, nc: nc}, nil
}

func NewNatsMirror(pub Publisher, subject string) *NatsMirror {
	return &NatsMirror{pub: pub, subject: subject}
}

func (m *NatsMirror) Append(line string) error {
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return nil
	}
	return m.pub.Publish(m.subject, []byte(line))
}

// Close flushes pending messages and closes the connection, if this mirror
// owns one.
func (m *NatsMirror) Close() error {
	if m.nc == nil {
		return nil
	}
	return m.nc.Drain()
}

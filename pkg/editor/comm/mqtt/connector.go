package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm"
)

// Connector implements editor.Connector using MQTT.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// ParseMetaTopic extracts the keyboard ref from a type/id/meta topic.
func ParseMetaTopic(topic string) (editor.KeyboardRef, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 || items[2] != TopicMeta {
		return editor.KeyboardRef{}, false
	}
	ref := editor.KeyboardRef{Type: items[0], ID: items[1]}
	return ref, ref.IsValid()
}

// Discover implements Connector. Keyboards with cleared meta are gone
// and not listed.
func (c *Connector) Discover(ctx context.Context) (res []editor.KeyboardInfo, err error) {
	q := NewQueue(c.options, c.topicPrefix)
	if err = q.ConnectAndWait(ctx); err != nil {
		return nil, err
	}
	defer q.Close()
	resCh := make(chan editor.KeyboardInfo, 1)
	q.Sub("+/+/"+TopicMeta, Handler(func(topic string, payload []byte) {
		ref, ok := ParseMetaTopic(topic)
		if !ok || len(payload) == 0 {
			return
		}
		info := editor.KeyboardInfo{Ref: ref}
		if err := json.Unmarshal(payload, &info.Meta); err != nil {
			glog.Warningf("invalid meta of %s: %v", ref.Name(), err)
		}
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	}))

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Connect implements Connector.
func (c *Connector) Connect(ctx context.Context, ref editor.KeyboardRef) (editor.Conn, error) {
	conn := &Conn{
		Queue: NewQueue(c.options, c.topicPrefix),
	}
	conn.Init(NewPacketReadWriter(conn.Queue).ForEditor(ref))
	if err := conn.Queue.ConnectAndWait(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// Conn implements editor.Conn using MQTT.
type Conn struct {
	comm.Conn
	Queue *Queue
}

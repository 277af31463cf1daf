package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Queue wraps an MQTT client with topic prefixing and local dispatch of
// subscriptions.
type Queue struct {
	Client      paho.Client
	TopicPrefix string
	// SubQoS is the QoS of subscriptions.
	SubQoS       byte
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler

	subs subscriptions
}

// ConnectHandler is to handle connect/disconnect events.
type ConnectHandler func(*Queue)

// Subscription is a handler registered on a topic filter.
type Subscription struct {
	// Token completes when the broker acknowledges a new filter.
	Token paho.Token

	queue   *Queue
	filter  string
	handler Handler
}

// NewQueue creates Queue.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix}
	options.SetOnConnectHandler(q.connected)
	options.SetConnectionLostHandler(q.connectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates Queue from URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewQueue(opts, topicPrefix), nil
}

// Connect connects the client.
func (q *Queue) Connect() paho.Token {
	return q.Client.Connect()
}

// ConnectAndWait connects the client and waits until connected or ctx
// is done.
func (q *Queue) ConnectAndWait(ctx context.Context) error {
	return Wait(ctx, q.Client.Connect())
}

// Wait waits for a token to complete or ctx is done.
func Wait(ctx context.Context, token paho.Token) error {
	doneCh := make(chan struct{})
	go func() {
		token.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(0)
	return nil
}

// Sub subscribes a topic filter. The broker is only asked for filters
// not subscribed yet.
func (q *Queue) Sub(filter string, handler Handler) *Subscription {
	sub := &Subscription{queue: q, filter: filter, handler: handler}
	if q.subs.add(sub) {
		glog.V(2).Infof("SUB %q", q.TopicPrefix+filter)
		sub.Token = q.Client.Subscribe(q.TopicPrefix+filter, q.SubQoS, q.dispatch)
	} else {
		sub.Token = &paho.DummyToken{}
	}
	return sub
}

// Pub publishes to a topic.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, 0, false)
}

// PubWith publishes with QoS and retain settings.
func (q *Queue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, qos, retain, payload)
}

// PubJSON publishes v encoded in JSON with QoS 1.
func (q *Queue) PubJSON(topic string, v interface{}, retain bool) (paho.Token, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return q.PubWith(topic, payload, 1, retain), nil
}

// Resubscribe subscribes all registered filters again, the broker
// forgets them with a clean session.
func (q *Queue) Resubscribe() paho.Token {
	filters := make(map[string]byte)
	for _, filter := range q.subs.list() {
		filters[q.TopicPrefix+filter] = q.SubQoS
	}
	if len(filters) == 0 {
		return &paho.DummyToken{}
	}
	glog.V(2).Infof("SUB %d filters", len(filters))
	return q.Client.SubscribeMultiple(filters, q.dispatch)
}

func (q *Queue) connected(paho.Client) {
	glog.Infof("mqtt connected, prefix %q", q.TopicPrefix)
	q.Resubscribe()
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

func (q *Queue) connectionLost(_ paho.Client, err error) {
	glog.Warningf("mqtt connection lost: %v", err)
	if h := q.OnDisconnect; h != nil {
		h(q)
	}
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, q.TopicPrefix) {
		return
	}
	q.deliver(topic[len(q.TopicPrefix):], msg.Payload())
}

func (q *Queue) deliver(topic string, payload []byte) {
	glog.V(2).Infof("RCV %q", topic)
	for _, h := range q.subs.handlers(topic) {
		h(topic, payload)
	}
}

// Close unsubscribes the handler. The filter is unsubscribed from the
// broker with the last handler.
func (s *Subscription) Close() error {
	if !s.queue.subs.remove(s) {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", s.filter)
	token := s.queue.Client.Unsubscribe(s.queue.TopicPrefix + s.filter)
	token.Wait()
	return token.Error()
}

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"time"

	"github.com/robotalks/roba/pkg/editor/comm/mqtt"
	"github.com/robotalks/roba/pkg/editor/msgs"
	"github.com/robotalks/roba/pkg/monitor"
)

var (
	mqttURL = "mqtt://localhost:1883/roba/"
	topic   = "#"
)

func init() {
	if val := os.Getenv("ROBA_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&topic, "topic", topic, "Topic filter under the prefix.")
}

// jsonTopics are published as JSON documents.
var jsonTopics = []string{"/" + mqtt.TopicMeta, "/" + monitor.TopicStatus, "/" + monitor.TopicLayers}

func isJSON(topic string) bool {
	for _, suffix := range jsonTopics {
		if strings.HasSuffix(topic, suffix) {
			return true
		}
	}
	return false
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub(topic, mqtt.Handler(func(topic string, payload []byte) {
		if isJSON(topic) {
			log.Printf("%s: %s", topic, string(payload))
			return
		}
		typed, err := msgs.DecodeTyped(payload)
		if err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		msg, err := typed.Decode()
		if err != nil {
			log.Printf("%s: decode error: (type_id=%x) %v", topic, typed.TypeId, err)
			return
		}
		log.Printf("%s: [%s #%d] %s", topic,
			reflect.Indirect(reflect.ValueOf(msg)).Type().Name(), typed.Sequence,
			msg.(msgs.SerializableMessage).Serializable().String())
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	err = q.ConnectAndWait(connectCtx)
	connectCancel()
	if err != nil {
		log.Fatalln(err)
	}
	defer q.Close()
	<-ctx.Done()
}

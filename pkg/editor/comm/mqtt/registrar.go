package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/roba/pkg/editor"
	"github.com/robotalks/roba/pkg/editor/comm"
	fx "github.com/robotalks/roba/pkg/framework"
)

// Registrar implements editor.Registrar using MQTT. The keyboard meta
// is published retained under type/id/meta while connected, and
// cleared by the will message when the keyboard goes away.
type Registrar struct {
	Queue *Queue
	Info  editor.KeyboardInfo

	metaLock  sync.Mutex
	metaJSON  []byte
	registrar comm.Registrar
}

// NewRegistrar creates a Registrar.
func NewRegistrar(brokerURL string, info editor.KeyboardInfo) (*Registrar, error) {
	meta, err := json.Marshal(&info.Meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+info.Ref.Name()+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("roba:" + info.Ref.Name())
	}
	r := &Registrar{
		Queue:    NewQueue(opts, topicPrefix),
		Info:     info,
		metaJSON: meta,
	}
	r.Queue.OnConnect = func(*Queue) { r.publishMeta() }
	r.registrar.Init(NewPacketReadWriter(r.Queue).ForKeyboard(info.Ref))
	return r, nil
}

// UpdateMeta replaces the published meta, e.g. when the keymap geometry
// changes after a reload.
func (r *Registrar) UpdateMeta(meta editor.KeyboardMeta) error {
	data, err := json.Marshal(&meta)
	if err != nil {
		return err
	}
	r.metaLock.Lock()
	r.Info.Meta, r.metaJSON = meta, data
	r.metaLock.Unlock()
	if r.Queue.Client.IsConnected() {
		r.publishMeta()
	}
	return nil
}

// SendEvent implements Registrar.
func (r *Registrar) SendEvent(ctx context.Context, msg fx.Message) error {
	if !r.Queue.Client.IsConnected() {
		return nil
	}
	return r.registrar.SendEvent(ctx, msg)
}

// AddToLoop implements LoopAdder.
func (r *Registrar) AddToLoop(loop *fx.Loop) {
	loop.Add(&r.registrar)
	loop.AddRunnable(r)
}

// Run implements Runnable.
func (r *Registrar) Run(ctx context.Context) error {
	r.Queue.Connect()
	<-ctx.Done()
	r.Queue.PubWith(r.Info.Ref.Name()+"/"+TopicMeta, nil, 1, true).Wait()
	r.Queue.Close()
	return nil
}

func (r *Registrar) publishMeta() {
	r.metaLock.Lock()
	meta := r.metaJSON
	r.metaLock.Unlock()
	glog.V(2).Infof("register %s", r.Info.Ref.Name())
	r.Queue.PubWith(r.Info.Ref.Name()+"/"+TopicMeta, meta, 1, true)
}

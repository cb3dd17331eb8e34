package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pixil98/go-realm/internal/broadcast"
	"github.com/pixil98/go-realm/internal/game"
	"github.com/pixil98/go-testutil"
)

type recordingPublisher struct {
	subject string
	data    []byte
	err     error
}

func (r *recordingPublisher) Publish(subject string, data []byte) error {
	r.subject = subject
	r.data = data
	return r.err
}

func TestBatchPublisher_Publish(t *testing.T) {
	tests := map[string]struct {
		subject    string
		pubErr     error
		expSubject string
		expErr     string
	}{
		"default subject": {
			expSubject: DefaultSubject,
		},
		"custom subject": {
			subject:    "realm.world",
			expSubject: "realm.world",
		},
		"publish error": {
			pubErr: errors.New("connection closed"),
			expErr: "publishing batch 3",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := &recordingPublisher{err: tt.pubErr}
			p := NewBatchPublisher(rec, tt.subject)

			err := p.Publish(context.Background(), broadcast.Batch{
				Seq:      3,
				Entities: []game.Entity{{ID: "m1", Kind: game.KindMonster}},
			})

			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "subject", rec.subject, tt.expSubject)

			var got broadcast.Batch
			if err := json.Unmarshal(rec.data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			testutil.AssertEqual(t, "seq", got.Seq, uint64(3))
			testutil.AssertEqual(t, "entity", got.Entities[0].ID, "m1")
		})
	}
}

func TestNatsServer_RoundTrip(t *testing.T) {
	srv, err := NewNatsServer(WithListen("", -1))
	if err != nil {
		t.Fatalf("NewNatsServer() error: %v", err)
	}

	if err := srv.Publish("x", nil); err == nil {
		t.Fatalf("expected error before start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-srv.Ready():
	case <-time.After(10 * time.Second):
		t.Fatalf("nats server not ready")
	}

	got := make(chan []byte, 1)
	unsub, err := srv.Subscribe(DefaultSubject, func(data []byte) { got <- data })
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsub()

	p := NewBatchPublisher(srv, "")
	if err := p.Publish(ctx, broadcast.Batch{Seq: 9}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case data := <-got:
		var b broadcast.Batch
		if err := json.Unmarshal(data, &b); err != nil {
			t.Fatalf("decode: %v", err)
		}
		testutil.AssertEqual(t, "seq", b.Seq, uint64(9))
	case <-time.After(5 * time.Second):
		t.Fatalf("no message received")
	}
}

func TestNatsServer_ExternalSubscriber(t *testing.T) {
	srv, err := NewNatsServer(WithListen("", -1), WithClientName("realm-test"))
	if err != nil {
		t.Fatalf("NewNatsServer() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-srv.Ready():
	case <-time.After(10 * time.Second):
		t.Fatalf("nats server not ready")
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("connect external client: %v", err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync("realm.mirror")
	if err != nil {
		t.Fatalf("SubscribeSync() error: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	p := NewBatchPublisher(srv, "realm.mirror")
	if err := p.Publish(ctx, broadcast.Batch{Seq: 4, RemovedEntities: []string{"i1"}}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg() error: %v", err)
	}
	var b broadcast.Batch
	if err := json.Unmarshal(msg.Data, &b); err != nil {
		t.Fatalf("decode: %v", err)
	}
	testutil.AssertEqual(t, "seq", b.Seq, uint64(4))
	testutil.AssertEqual(t, "removed", len(b.RemovedEntities), 1)
}

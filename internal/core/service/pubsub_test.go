package service

import (
	"reflect"
	"testing"
)

type fakeSubscriber struct {
	id   string
	msgs []string
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Deliver(channel, message string) {
	s.msgs = append(s.msgs, channel+":"+message)
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub()
	a := &fakeSubscriber{id: "a"}
	b := &fakeSubscriber{id: "b"}

	if !h.Subscribe("news", a) {
		t.Fatal("first subscribe should add")
	}
	if h.Subscribe("news", a) {
		t.Error("duplicate subscribe should not add")
	}
	h.Subscribe("news", b)
	h.Subscribe("sport", b)

	if n := h.Publish("news", "hello"); n != 2 {
		t.Errorf("Publish receivers = %d, want 2", n)
	}
	if n := h.Publish("nobody", "x"); n != 0 {
		t.Errorf("Publish(nobody) = %d", n)
	}
	if !reflect.DeepEqual(a.msgs, []string{"news:hello"}) {
		t.Errorf("a got %v", a.msgs)
	}

	if got := h.Channels(); !reflect.DeepEqual(got, []string{"news", "sport"}) {
		t.Errorf("Channels = %v", got)
	}

	if !h.Unsubscribe("news", a) || h.Unsubscribe("news", a) {
		t.Error("Unsubscribe should succeed once")
	}
	h.UnsubscribeAll(b)
	if len(h.Channels()) != 0 {
		t.Errorf("Channels after unsubscribe = %v", h.Channels())
	}
	if h.NumSub("news") != 0 {
		t.Error("NumSub should be 0")
	}
}

package eventbus

import "testing"

func TestPublishDropsWhenSubscriberFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeMessageDispatched})
	b.Publish(Event{Type: TypeBroadcastFinished})

	e := <-ch
	if e.Type != TypeMessageDispatched {
		t.Fatalf("first event = %q", e.Type)
	}
	if e.Time.IsZero() {
		t.Fatal("publish should stamp time")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second event %q", extra.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: TypeSenderBanned})
}

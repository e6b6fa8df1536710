package pubsub

import "testing"

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	r := New()
	var got1, got2 []any
	r.Subscribe("docs", func(ch string, payload any) { got1 = append(got1, payload) })
	r.Subscribe("docs", func(ch string, payload any) { got2 = append(got2, payload) })

	r.Publish("docs", "hello")

	if len(got1) != 1 || got1[0] != "hello" {
		t.Fatalf("subscriber 1 got %v", got1)
	}
	if len(got2) != 1 || got2[0] != "hello" {
		t.Fatalf("subscriber 2 got %v", got2)
	}
}

func TestPublish_OnlyTargetsItsChannel(t *testing.T) {
	r := New()
	var got []any
	r.Subscribe("docs", func(ch string, payload any) { got = append(got, payload) })

	r.Publish("other", "irrelevant")

	if len(got) != 0 {
		t.Fatalf("expected no delivery on unrelated channel, got %v", got)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	r := New()
	var count int
	id := r.Subscribe("docs", func(ch string, payload any) { count++ })

	r.Publish("docs", 1)
	r.Unsubscribe("docs", id)
	r.Publish("docs", 2)

	if count != 1 {
		t.Fatalf("got %d deliveries, want 1", count)
	}
}

func TestClear_RemovesEverySubscription(t *testing.T) {
	r := New()
	var count int
	r.Subscribe("a", func(ch string, payload any) { count++ })
	r.Subscribe("b", func(ch string, payload any) { count++ })

	r.Clear()
	r.Publish("a", 1)
	r.Publish("b", 1)

	if count != 0 {
		t.Fatalf("expected no deliveries after Clear, got %d", count)
	}
}

package events

import "testing"

func TestFeedDeliversToSubscribers(t *testing.T) {
	f := NewFeed[int]()
	sub1 := f.Subscribe(1)
	sub2 := f.Subscribe(1)

	f.Send(42)

	for _, sub := range []*Subscription[int]{sub1, sub2} {
		select {
		case v := <-sub.Chan():
			if v != 42 {
				t.Fatalf("expected 42, got %d", v)
			}
		default:
			t.Fatal("expected a buffered value")
		}
	}
}

func TestFeedDropsOnFullBuffer(t *testing.T) {
	f := NewFeed[int]()
	sub := f.Subscribe(1)

	f.Send(1)
	f.Send(2) // buffer full, must not block

	v := <-sub.Chan()
	if v != 1 {
		t.Fatalf("expected first sent value 1, got %d", v)
	}
	select {
	case v := <-sub.Chan():
		t.Fatalf("expected no second value (dropped), got %d", v)
	default:
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	f := NewFeed[int]()
	sub := f.Subscribe(1)
	sub.Unsubscribe()

	f.Send(1) // must not panic sending to a feed whose only sub unsubscribed

	if _, ok := <-sub.Chan(); ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

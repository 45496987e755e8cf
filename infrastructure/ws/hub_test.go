package ws

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSendToUserReachesAllConnections(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	phone := NewClient("alice", "phone", hub, nil)
	laptop := NewClient("alice", "laptop", hub, nil)
	other := NewClient("bob", "desk", hub, nil)

	hub.RegisterClient(phone)
	hub.RegisterClient(laptop)
	hub.RegisterClient(other)
	waitFor(t, func() bool { return hub.ConnectionCount() == 3 })

	hub.SendToUser("alice", []byte("ping"))

	for _, client := range []*UserClient{phone, laptop} {
		select {
		case got := <-client.send:
			if string(got) != "ping" {
				t.Fatalf("unexpected frame %q", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("connection %s missed the frame", client.ConnId)
		}
	}

	select {
	case got := <-other.send:
		t.Fatalf("bob must not receive alice's frame, got %q", got)
	default:
	}
}

func TestUnregisterDropsSingleConnection(t *testing.T) {
	hub := NewHub()

	unregistered := make(chan string, 2)
	hub.SetOnClientUnregister(func(client *UserClient) error {
		unregistered <- client.ConnId
		return nil
	})

	go hub.Run()

	phone := NewClient("alice", "phone", hub, nil)
	laptop := NewClient("alice", "laptop", hub, nil)
	hub.RegisterClient(phone)
	hub.RegisterClient(laptop)
	waitFor(t, func() bool { return hub.ConnectionCount() == 2 })

	hub.UnregisterClient(phone)
	waitFor(t, func() bool { return hub.ConnectionCount() == 1 })

	select {
	case connId := <-unregistered:
		if connId != "phone" {
			t.Fatalf("expected phone unregistered, got %q", connId)
		}
	case <-time.After(time.Second):
		t.Fatal("unregister callback not invoked")
	}

	// The remaining connection still receives frames.
	hub.SendToUser("alice", []byte("still here"))
	select {
	case got := <-laptop.send:
		if string(got) != "still here" {
			t.Fatalf("unexpected frame %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("laptop missed the frame")
	}
}

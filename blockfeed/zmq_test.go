package blockfeed

import (
	"fmt"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// TestFeedReceivesHash exercises a real PUB/SUB pair over a loopback TCP
// socket, since zmq4's SUB client has no fake to swap in.
func TestFeedReceivesHash(t *testing.T) {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()
	addr := "tcp://127.0.0.1:28555"
	if err := pub.Bind(addr); err != nil {
		t.Skipf("could not bind test publisher: %v", err)
	}

	f := New(Config{Addr: addr, MaxReconnects: 1}, nil)
	go f.Run()
	defer f.Stop()

	select {
	case <-f.Open():
	case <-time.After(2 * time.Second):
		t.Fatal("feed never opened")
	}

	// Slow-joiner: give the subscriber's connection time to register with
	// the publisher before sending.
	time.Sleep(200 * time.Millisecond)

	want := []byte{0xde, 0xad, 0xbe, 0xef}
	if _, err := pub.SendMessage("hashblock", want); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-f.Hashes():
		if got != fmt.Sprintf("%x", want) {
			t.Errorf("got hash %q, want %x", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("never received hash")
	}
}

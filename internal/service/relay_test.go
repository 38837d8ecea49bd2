package service

import (
	"errors"
	"testing"
)

func feed(frags ...Fragment) <-chan Fragment {
	ch := make(chan Fragment, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return ch
}

func TestRelayWritesInOrderAndAccumulates(t *testing.T) {
	w := &collectWriter{}
	out, err := Relay(feed(Fragment{Text: "Hotel "}, Fragment{Text: "Adlon"}, Fragment{Text: "!"}, Fragment{Done: true}), w, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hotel Adlon!" {
		t.Fatalf("accumulated = %q", out)
	}
	if len(w.chunks) != 3 || w.chunks[0] != "Hotel " || w.chunks[2] != "!" {
		t.Fatalf("chunks = %q", w.chunks)
	}
}

func TestRelayZeroChunks(t *testing.T) {
	w := &collectWriter{}
	out, err := Relay(feed(Fragment{Done: true}), w, nil)
	if err != nil || out != "" || len(w.chunks) != 0 {
		t.Fatalf("got %q, %v, %q", out, err, w.chunks)
	}
}

func TestRelayReturnsProducerError(t *testing.T) {
	out, err := Relay(feed(Fragment{Text: "par"}, Fragment{Done: true, Err: ErrCompletion}), &collectWriter{}, nil)
	if !errors.Is(err, ErrCompletion) {
		t.Fatalf("err = %v", err)
	}
	if out != "par" {
		t.Fatalf("out = %q", out)
	}
}

func TestRelayWriterErrorCancelsProducer(t *testing.T) {
	cancelled := false
	w := &collectWriter{failAfter: 2}
	out, err := Relay(feed(Fragment{Text: "a"}, Fragment{Text: "b"}, Fragment{Text: "c"}, Fragment{Done: true}), w,
		func() { cancelled = true })
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("err = %v", err)
	}
	if !cancelled {
		t.Fatal("cancel was not called")
	}
	if out != "a" {
		t.Fatalf("accumulated = %q, want only delivered text", out)
	}
}

func TestRelayChannelClosedWithoutDone(t *testing.T) {
	_, err := Relay(feed(Fragment{Text: "a"}), &collectWriter{}, nil)
	if !errors.Is(err, ErrStreamInterrupted) {
		t.Fatalf("err = %v", err)
	}
}

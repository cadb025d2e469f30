package iox

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type spyCloser struct {
	io.Reader
	closed bool
}

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDrainClose(t *testing.T) {
	r := strings.NewReader("leftover body bytes")
	s := &spyCloser{Reader: r}
	DrainClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
	if r.Len() != 0 {
		t.Fatalf("reader not drained, %d bytes left", r.Len())
	}
}

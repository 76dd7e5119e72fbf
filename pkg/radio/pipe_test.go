package radio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestPipe_SendReceive(t *testing.T) {
	a, b := NewPipePair(DefaultPipeConfig())
	defer a.Close()

	b.SetRSSI(-72)
	packet := bytes.Repeat([]byte{0xAB}, MaxPacketSize)
	if err := a.Send(packet); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, MaxPacketSize)
	n, err := b.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(buf[:n], packet) {
		t.Errorf("received %x, want %x", buf[:n], packet)
	}
	if b.LastRSSI() != -72 {
		t.Errorf("LastRSSI = %d, want -72", b.LastRSSI())
	}
	if a.Sent() != 1 {
		t.Errorf("Sent = %d, want 1", a.Sent())
	}
}

func TestPipe_ReceiveTimeout(t *testing.T) {
	a, b := NewPipePair(DefaultPipeConfig())
	defer a.Close()

	start := time.Now()
	_, err := b.Receive(make([]byte, MaxPacketSize), 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Receive returned before the timeout")
	}

	// A timeout leaves the endpoint usable.
	a.Send([]byte{1, 2, 3})
	if _, err := b.Receive(make([]byte, MaxPacketSize), time.Second); err != nil {
		t.Errorf("Receive after timeout: %v", err)
	}
}

func TestPipe_PacketTooLarge(t *testing.T) {
	a, _ := NewPipePair(DefaultPipeConfig())
	defer a.Close()

	if err := a.Send(make([]byte, MaxPacketSize+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("error = %v, want ErrPacketTooLarge", err)
	}
}

func TestPipe_DropNext(t *testing.T) {
	a, b := NewPipePair(DefaultPipeConfig())
	defer a.Close()

	a.DropNext(1)
	a.Send([]byte{1})
	a.Send([]byte{2})

	buf := make([]byte, MaxPacketSize)
	n, err := b.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != 1 || buf[0] != 2 {
		t.Errorf("received %x, want 02", buf[:n])
	}
}

func TestPipe_Conditions(t *testing.T) {
	a, b := NewPipePair(PipeConfig{Seed: 1})
	defer a.Close()

	a.Pipe().SetCondition(NetworkCondition{DuplicateRate: 1})
	a.Send([]byte{7})

	buf := make([]byte, MaxPacketSize)
	for i := 0; i < 2; i++ {
		if _, err := b.Receive(buf, time.Second); err != nil {
			t.Fatalf("copy %d: %v", i, err)
		}
	}

	a.Pipe().SetCondition(NetworkCondition{DropRate: 1})
	a.Send([]byte{8})
	if _, err := b.Receive(buf, 30*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Errorf("dropped packet error = %v, want ErrTimeout", err)
	}
}

func TestPipe_FailNextSends(t *testing.T) {
	a, _ := NewPipePair(DefaultPipeConfig())
	defer a.Close()

	a.FailNextSends(2)
	for i := 0; i < 2; i++ {
		if err := a.Send([]byte{1}); !errors.Is(err, ErrTransportFailure) {
			t.Errorf("send %d error = %v, want ErrTransportFailure", i, err)
		}
	}
	if err := a.Send([]byte{1}); err != nil {
		t.Errorf("send after failures: %v", err)
	}
	if a.Sent() != 3 {
		t.Errorf("Sent = %d, want 3", a.Sent())
	}
}

func TestPipe_Close(t *testing.T) {
	a, b := NewPipePair(DefaultPipeConfig())

	done := make(chan error, 1)
	go func() {
		_, err := b.Receive(make([]byte, MaxPacketSize), 5*time.Second)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("pending Receive error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}

	if err := b.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after close = %v", err)
	}
	if err := b.Init(); !errors.Is(err, ErrClosed) {
		t.Errorf("Init after close = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

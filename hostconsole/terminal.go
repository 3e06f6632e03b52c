package hostconsole

import (
	"context"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/term"
)

// TerminalReader puts stdin in raw mode and feeds bytes to console.read
// through a buffered channel, mirroring terminal_host.go's TerminalHost:
// MakeRaw + SetNonblock + a single reader goroutine that exits on Stop.
// The only difference is the sink: a channel a syscall can pull from
// instead of a fixed MMIO device.
type TerminalReader struct {
	fd           int
	oldTermState *term.State
	nonblockSet  bool

	bytes   chan byte
	stopCh  chan struct{}
	done    chan struct{}
	stopOne sync.Once
}

func NewTerminalReader() *TerminalReader {
	return &TerminalReader{
		bytes:  make(chan byte, 4096),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts stdin in raw, non-blocking mode and begins the reader
// goroutine. Call Stop to restore the terminal.
func (t *TerminalReader) Start() error {
	t.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(t.fd)
	if err != nil {
		close(t.done)
		return fmt.Errorf("hostconsole: set raw mode: %w", err)
	}
	t.oldTermState = oldState

	if err := syscall.SetNonblock(t.fd, true); err != nil {
		_ = term.Restore(t.fd, t.oldTermState)
		t.oldTermState = nil
		close(t.done)
		return fmt.Errorf("hostconsole: set nonblocking stdin: %w", err)
	}
	t.nonblockSet = true

	go t.readLoop()
	return nil
}

func (t *TerminalReader) readLoop() {
	defer close(t.done)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopCh:
			return
		default:
		}
		n, err := syscall.Read(t.fd, buf)
		for i := 0; i < n; i++ {
			b := buf[i]
			if b == '\r' {
				b = '\n'
			}
			select {
			case t.bytes <- b:
			case <-t.stopCh:
				return
			}
		}
		if err != nil && n <= 0 {
			continue
		}
	}
}

// Read blocks until at least one byte is available, ctx is done, or Stop
// is called, copying up to len(dst) buffered bytes without blocking past
// the first one.
func (t *TerminalReader) Read(ctx context.Context, dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	select {
	case b := <-t.bytes:
		dst[0] = b
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-t.stopCh:
		return 0, fmt.Errorf("hostconsole: reader stopped")
	}
	n := 1
	for n < len(dst) {
		select {
		case b := <-t.bytes:
			dst[n] = b
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

// Stop restores the terminal and stops the reader goroutine.
func (t *TerminalReader) Stop() {
	t.stopOne.Do(func() {
		close(t.stopCh)
		if t.oldTermState != nil {
			_ = term.Restore(t.fd, t.oldTermState)
		}
	})
	<-t.done
}

// Per-connection writer queue: decouples wire serialization from the
// caller's goroutine and guarantees FIFO delivery. Grounded on the
// channel-plus-dedicated-worker idiom used elsewhere in this codebase to
// decouple queues from caller threads.

package schedcore

import (
	"io"
	"sync"
)

var writerLog = NewCompLogger("writer")

const writerQueueDepth = 256

// Writer owns one dedicated goroutine draining a bounded queue of outgoing
// messages into the underlying connection. Safe to call Enqueue from any
// goroutine; Close is idempotent.
type Writer struct {
	conn io.WriteCloser
	bufs *BufPool

	mu     sync.Mutex
	queue  chan *Message
	closed bool
	done   chan struct{}
}

func NewWriter(conn io.WriteCloser) *Writer {
	w := &Writer{
		conn:  conn,
		bufs:  NewBufPool(8),
		queue: make(chan *Message, writerQueueDepth),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Enqueue appends a message to the write queue. Silently dropped once the
// writer is closed; messages queued before Close are still written by
// Close's drain. The send happens under w.mu so it cannot race Close's
// close(w.queue).
func (w *Writer) Enqueue(m *Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.queue <- m:
	default:
		writerLog.Warnf("writer queue full, dropping %s", m.Msg)
	}
}

func (w *Writer) loop() {
	defer close(w.done)
	for m := range w.queue {
		buf := w.bufs.GetBuf()
		encoded, err := encodeMessage(m)
		if err != nil {
			writerLog.Errorf("encode %s: %v", m.Msg, err)
			w.bufs.ReturnBuf(buf)
			continue
		}
		buf.Write(encoded)
		_, err = w.conn.Write(buf.Bytes())
		w.bufs.ReturnBuf(buf)
		if err != nil {
			writerLog.Warnf("write failed: %v", err)
			return
		}
	}
}

// Close stops accepting new messages, drains what's queued (best effort:
// the adapter's teardown order sends QUIT before closing), and closes the
// underlying connection.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	<-w.done
	w.conn.Close()
}

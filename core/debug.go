package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	debugQueue   atomic.Pointer[asyncDebug]
	debugDropped atomic.Uint32
)

// asyncDebug hands messages from a loop that must keep its timing to a
// writer that may stall, such as USB CDC with no host attached
type asyncDebug struct {
	msgs chan string
	done chan struct{}
}

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, a host logger, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// StartAsyncDebug starts a writer goroutine behind a queue of depth
// messages. Call it after SetDebugWriter. The returned func stops the
// writer; messages still queued are discarded.
func StartAsyncDebug(depth int) (stop func()) {
	if depth < 1 {
		depth = 1
	}
	q := &asyncDebug{
		msgs: make(chan string, depth),
		done: make(chan struct{}),
	}
	if old := debugQueue.Swap(q); old != nil {
		close(old.done)
	}
	go q.run()

	return func() {
		if debugQueue.CompareAndSwap(q, nil) {
			close(q.done)
		}
	}
}

func (q *asyncDebug) run() {
	for {
		select {
		case msg := <-q.msgs:
			if debugPrintln != nil {
				debugPrintln(msg)
			}
		case <-q.done:
			return
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
// Blocks until the writer returns (use DebugAsync from polling loops)
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message without blocking. A message that finds
// the queue full, or no queue started, is counted as dropped.
func DebugAsync(msg string) {
	if !debugEnabled {
		return
	}
	q := debugQueue.Load()
	if q == nil {
		debugDropped.Add(1)
		return
	}
	select {
	case q.msgs <- msg:
	default:
		debugDropped.Add(1)
	}
}

// DebugDropped returns the number of async messages dropped since the last
// call and resets the count
func DebugDropped() uint32 {
	return debugDropped.Swap(0)
}

// mailbox.go implements the per-shard bounded FIFO of pending mutations
// and the synchronous request/reply wrapper callers use to await a
// mutation's result. Each message carries its own one-slot reply channel;
// a caller that walks away on context cancellation loses the reply, but
// the mutation still runs and commits.
//
// © 2025 kvshard authors. MIT License.
package kvengine

import "context"

// mutationFn is one pending mutation's body: a closure that runs inside
// the shard's single dispatcher goroutine with exclusive access to shard
// state, and returns whatever the caller of the mailbox asked for.
type mutationFn func(s *shard) (any, error)

// mailboxMsg is one entry in a shard's mailbox.
type mailboxMsg struct {
	fn    mutationFn
	reply chan mailboxReply
}

type mailboxReply struct {
	val any
	err error
}

// mailbox is a bounded FIFO of pending mutations for one shard.
type mailbox struct {
	ch chan mailboxMsg
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{ch: make(chan mailboxMsg, capacity)}
}

// depth reports the current number of queued (not yet dispatched)
// messages, for the mailbox-depth gauge.
func (m *mailbox) depth() int { return len(m.ch) }

// submit enqueues fn and blocks until the dispatcher has run it and
// replied, or ctx is done. If the mailbox is full, submit returns
// KindOverloaded immediately without blocking on enqueue.
//
// If ctx is cancelled after enqueue but before the dispatcher runs fn, fn
// still executes and commits its effect; submit simply stops waiting for
// the reply.
func (m *mailbox) submit(ctx context.Context, fn mutationFn) (any, error) {
	msg := mailboxMsg{fn: fn, reply: make(chan mailboxReply, 1)}
	select {
	case m.ch <- msg:
	default:
		return nil, ErrOverloaded("shard_mailbox_full")
	}

	select {
	case r := <-msg.reply:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run is the shard's single dispatcher: it drains the mailbox in arrival
// order, executing at most one mutation at a time. It returns when the
// mailbox channel is closed and drained.
func (m *mailbox) run(s *shard) {
	for msg := range m.ch {
		val, err := msg.fn(s)
		msg.reply <- mailboxReply{val: val, err: err}
	}
}

// close ends the dispatcher once every queued message has been drained.
// Only the shard's shutdown path may call it.
func (m *mailbox) close() { close(m.ch) }

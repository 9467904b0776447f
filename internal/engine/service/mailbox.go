package service

import (
	"sync"

	"github.com/ef-ds/deque"
)

// mailbox is an unbounded FIFO between a producer that must never block and
// a single consumer reading from out. Values pushed after close are dropped.
type mailbox[T any] struct {
	mu     sync.Mutex
	queue  deque.Deque
	signal chan struct{}
	out    chan T
	done   chan struct{}
	once   sync.Once
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go m.pump()
	return m
}

func (m *mailbox[T]) push(v T) {
	select {
	case <-m.done:
		return
	default:
	}

	m.mu.Lock()
	m.queue.PushBack(v)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// C yields pushed values in order and is closed after close.
func (m *mailbox[T]) C() <-chan T {
	return m.out
}

func (m *mailbox[T]) close() {
	m.once.Do(func() { close(m.done) })
}

func (m *mailbox[T]) pump() {
	defer close(m.out)
	for {
		m.mu.Lock()
		v, ok := m.queue.PopFront()
		m.mu.Unlock()

		if !ok {
			select {
			case <-m.signal:
				continue
			case <-m.done:
				return
			}
		}

		select {
		case m.out <- v.(T):
		case <-m.done:
			return
		}
	}
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailbox_PushNeverBlocksAndKeepsOrder(t *testing.T) {
	m := newMailbox[int]()
	defer m.close()

	for i := 0; i < 1000; i++ {
		m.push(i)
	}

	for i := 0; i < 1000; i++ {
		select {
		case v := <-m.C():
			require.Equal(t, i, v)
		case <-time.After(waitTimeout):
			t.Fatalf("missing value %d", i)
		}
	}
}

func TestMailbox_CloseEndsStreamAndDropsLaterPushes(t *testing.T) {
	m := newMailbox[string]()
	m.close()
	m.close()
	m.push("late")

	select {
	case _, ok := <-m.C():
		require.False(t, ok)
	case <-time.After(waitTimeout):
		t.Fatal("stream not closed")
	}
}

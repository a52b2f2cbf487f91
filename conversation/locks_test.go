package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocks(t *testing.T) {
	l := newUserLocks()

	release := l.lock("a")
	assert.Equal(t, 1, l.size())

	// Another user is not blocked
	releaseB := l.lock("b")
	assert.Equal(t, 2, l.size())
	releaseB()

	acquired := make(chan struct{})
	go func() {
		r := l.lock("a")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same user acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}

	assert.Eventually(t, func() bool { return l.size() == 0 }, time.Second, 5*time.Millisecond)
}

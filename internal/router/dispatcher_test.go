package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
)

func TestDispatcherPreservesPerUserOrder(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64][]int64{}
	done := make(chan struct{}, 20)

	d := NewDispatcher(func(ctx context.Context, update *models.Update) {
		mu.Lock()
		user := senderID(update)
		seen[user] = append(seen[user], update.ID)
		mu.Unlock()
		done <- struct{}{}
	}, DispatcherOptions{Logger: nullLogger()})
	defer d.Close()

	for i := int64(1); i <= 10; i++ {
		for _, user := range []int64{1, 2} {
			update := messageUpdate(user, "/start")
			update.ID = i
			if err := d.Submit(update); err != nil {
				t.Fatalf("Submit returned error: %v", err)
			}
		}
	}

	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for updates")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, user := range []int64{1, 2} {
		ids := seen[user]
		if len(ids) != 10 {
			t.Fatalf("user %d: expected 10 updates, got %d", user, len(ids))
		}
		for i, id := range ids {
			if id != int64(i+1) {
				t.Fatalf("user %d: out of order at %d: %v", user, i, ids)
			}
		}
	}
}

func TestDispatcherDoesNotBlockOtherUsers(t *testing.T) {
	release := make(chan struct{})
	handled := make(chan int64, 1)

	d := NewDispatcher(func(ctx context.Context, update *models.Update) {
		user := senderID(update)
		if user == 1 {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return
		}
		handled <- user
	}, DispatcherOptions{Logger: nullLogger()})
	defer d.Close()
	defer close(release)

	if err := d.Submit(messageUpdate(1, "/start")); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if err := d.Submit(messageUpdate(2, "/start")); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	select {
	case user := <-handled:
		if user != 2 {
			t.Fatalf("expected user 2, got %d", user)
		}
	case <-time.After(time.Second):
		t.Fatalf("user 2 was blocked by user 1")
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)

	d := NewDispatcher(func(ctx context.Context, update *models.Update) {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
	}, DispatcherOptions{QueueSize: 1, Logger: nullLogger()})
	defer d.Close()
	defer close(block)

	if err := d.Submit(messageUpdate(1, "a")); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}
	<-started

	if err := d.Submit(messageUpdate(1, "b")); err != nil {
		t.Fatalf("second Submit returned error: %v", err)
	}
	if err := d.Submit(messageUpdate(1, "c")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherIdleWorkerExits(t *testing.T) {
	done := make(chan struct{}, 1)
	d := NewDispatcher(func(ctx context.Context, update *models.Update) {
		done <- struct{}{}
	}, DispatcherOptions{IdleTimeout: 10 * time.Millisecond, Logger: nullLogger()})
	defer d.Close()

	if err := d.Submit(messageUpdate(1, "/start")); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	<-done

	deadline := time.Now().Add(time.Second)
	for d.Active() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected idle worker to exit, %d active", d.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcherCloseCancelsHandlers(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})

	d := NewDispatcher(func(ctx context.Context, update *models.Update) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}, DispatcherOptions{Logger: nullLogger()})

	if err := d.Submit(messageUpdate(1, "/start")); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	<-started

	d.Close()

	select {
	case <-cancelled:
	default:
		t.Fatalf("expected handler context to be cancelled before Close returns")
	}
	if err := d.Submit(messageUpdate(1, "/start")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed after Close, got %v", err)
	}
	d.Close()
}

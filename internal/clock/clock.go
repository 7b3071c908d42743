// Package clock абстрагирует источник времени и ожидание между повторами,
// чтобы тесты не спали в реальном времени.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock возвращает текущее время и умеет ждать заданный интервал.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real использует системные часы.
type Real struct{}

// Now возвращает текущее системное время.
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep ждёт интервал d или отмену контекста.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fake реализует управляемые часы для тестов. Sleep не блокирует, а сдвигает время
// и запоминает запрошенные интервалы.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFake создаёт часы, показывающие время t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t.UTC()}
}

// Now возвращает текущее время фейковых часов.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance сдвигает время вперёд на d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep мгновенно сдвигает время на d и фиксирует интервал.
func (c *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps возвращает копию всех запрошенных интервалов ожидания.
func (c *Fake) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

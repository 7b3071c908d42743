package verify

import (
	"context"
	"errors"
	"time"

	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
)

// Candidate описывает один из вариантов выполнения операции.
type Candidate[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// ErrNoCandidates возвращается, если список вариантов пуст.
var ErrNoCandidates = errors.New("no candidates to try")

// TryInOrder выполняет варианты по порядку до первого успеха и возвращает журнал
// всех попыток. Если все варианты неудачны, возвращается ошибка последнего.
func TryInOrder[T any](ctx context.Context, now func() time.Time, candidates []Candidate[T]) (T, []model.Attempt, error) {
	return TryInOrderWhen(ctx, now, candidates, func(error) bool { return true })
}

// TryInOrderWhen работает как TryInOrder, но переходит к следующему варианту
// только если next разрешает это для ошибки текущего.
func TryInOrderWhen[T any](ctx context.Context, now func() time.Time, candidates []Candidate[T], next func(error) bool) (T, []model.Attempt, error) {
	var zero T
	if len(candidates) == 0 {
		return zero, nil, ErrNoCandidates
	}
	if now == nil {
		now = time.Now
	}

	log := make([]model.Attempt, 0, len(candidates))
	var lastErr error
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, log, err
		}

		started := now()
		v, err := c.Run(ctx)
		a := model.Attempt{
			Number:    i + 1,
			Name:      c.Name,
			Success:   err == nil,
			Found:     err == nil,
			Duration:  now().Sub(started),
			StartedAt: started,
		}
		if err != nil {
			a.Error = err.Error()
			lastErr = err
		}
		log = append(log, a)

		if err == nil {
			return v, log, nil
		}
		if !next(err) {
			break
		}
	}
	return zero, log, lastErr
}

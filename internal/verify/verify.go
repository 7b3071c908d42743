// Package verify реализует протокол «запись, повторное чтение, сверка» для
// изменяющих операций: API провайдера может молча игнорировать часть полей,
// поэтому результат строится по фактически сохранённому состоянию.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/mmeshcher/isp-mcp-gateway/internal/apperr"
	"github.com/mmeshcher/isp-mcp-gateway/internal/model"
	"github.com/mmeshcher/isp-mcp-gateway/internal/normalize"
)

// State описывает состояние протокола проверки записи.
type State string

const (
	StateIdle               State = "idle"
	StateSending            State = "sending"
	StateSent               State = "sent"
	StateVerifying          State = "verifying"
	StateVerified           State = "verified"
	StateVerificationFailed State = "verification_failed"
)

// Write описывает одну изменяющую операцию.
type Write struct {
	// Fields содержит поля, которые запрошено изменить, в именах API. Именно они сверяются.
	Fields map[string]any
	// Send выполняет запись и возвращает тело ответа.
	Send func(ctx context.Context) (json.RawMessage, error)
	// Reread читает сущность заново в обход кеша.
	Reread func(ctx context.Context) (json.RawMessage, error)
	// Equal переопределяет сравнение для отдельных полей.
	Equal map[string]func(sent, observed any) bool
	// OnTransition вызывается при каждой смене состояния, если задан.
	OnTransition func(from, to State)
}

// Outcome содержит итог протокола.
type Outcome struct {
	State    State
	Response json.RawMessage
	Observed json.RawMessage
	Record   normalize.Record
	Report   model.Verification
}

// Run выполняет запись и проверяет её повторным чтением. Ошибка возвращается
// только при пустом наборе полей или неудачной записи; сбой повторного чтения
// и несовпадения полей отражаются в отчёте.
func Run(ctx context.Context, w Write) (*Outcome, error) {
	state := StateIdle
	move := func(to State) {
		if w.OnTransition != nil {
			w.OnTransition(state, to)
		}
		state = to
	}

	if len(w.Fields) == 0 {
		return nil, apperr.Validation("at least one field required")
	}

	move(StateSending)
	resp, err := w.Send(ctx)
	if err != nil {
		return nil, err
	}
	move(StateSent)

	out := &Outcome{Response: resp}

	move(StateVerifying)
	observed, err := w.Reread(ctx)
	if err == nil {
		rec, ok, derr := normalize.UnwrapOne(observed)
		switch {
		case derr != nil:
			err = derr
		case !ok:
			err = apperr.NotFound("entity missing on re-read")
		default:
			out.Observed = observed
			out.Record = rec
		}
	}

	if err != nil {
		move(StateVerificationFailed)
		out.State = state
		out.Report = model.Verification{State: string(state), Error: err.Error()}
		if rec, ok, derr := normalize.UnwrapOne(resp); derr == nil && ok {
			out.Record = rec
		}
		return out, nil
	}

	checks := CompareWith(w.Fields, out.Record, w.Equal)
	move(StateVerified)
	out.State = state
	out.Report = model.Verification{
		State:      string(state),
		Verified:   true,
		Fields:     checks,
		Mismatches: Mismatches(checks),
	}
	return out, nil
}

// Compare сверяет отправленные значения с прочитанной записью поле за полем.
func Compare(sent map[string]any, observed normalize.Record) []model.FieldCheck {
	return CompareWith(sent, observed, nil)
}

// CompareWith работает как Compare, но для полей из eq использует заданное сравнение.
func CompareWith(sent map[string]any, observed normalize.Record, eq map[string]func(sent, observed any) bool) []model.FieldCheck {
	fields := make([]string, 0, len(sent))
	for f := range sent {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	checks := make([]model.FieldCheck, 0, len(fields))
	for _, f := range fields {
		obs := observed[f]
		match := Equal
		if custom, ok := eq[f]; ok {
			match = custom
		}
		checks = append(checks, model.FieldCheck{
			Field:    f,
			Sent:     sent[f],
			Observed: obs,
			Match:    match(sent[f], obs),
		})
	}
	return checks
}

// Mismatches возвращает имена несовпавших полей.
func Mismatches(checks []model.FieldCheck) []string {
	var out []string
	for _, c := range checks {
		if !c.Match {
			out = append(out, c.Field)
		}
	}
	return out
}

// Equal сравнивает значения без учёта представления: число и строка с тем же
// числом равны, строки сравниваются без крайних пробелов, у вложенного объекта
// сравнивается его id.
func Equal(sent, observed any) bool {
	if m, ok := observed.(map[string]any); ok {
		if _, isMap := sent.(map[string]any); !isMap {
			if id, ok := m["id"]; ok {
				observed = id
			}
		}
	}

	if sent == nil || observed == nil {
		return isBlank(sent) && isBlank(observed)
	}

	if a, ok := asNumber(sent); ok {
		if b, ok := asNumber(observed); ok {
			return math.Abs(a-b) < 1e-9
		}
	}

	sa, aok := sent.(string)
	sb, bok := observed.(string)
	if aok && bok {
		return strings.TrimSpace(sa) == strings.TrimSpace(sb)
	}

	ja, errA := json.Marshal(sent)
	jb, errB := json.Marshal(observed)
	if errA != nil || errB != nil {
		return fmt.Sprint(sent) == fmt.Sprint(observed)
	}
	return string(ja) == string(jb)
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Package normalize приводит разнородные ответы API провайдера к каноническим
// доменным записям. Все функции пакета чистые и не выполняют ввода-вывода.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Record хранит сырую запись API в виде JSON-объекта.
type Record = map[string]any

// Shape описывает форму ответа API.
type Shape int

const (
	// ShapeEmpty: пустое тело или null.
	ShapeEmpty Shape = iota
	// ShapeSingle: одиночный объект.
	ShapeSingle
	// ShapeMany: голый массив объектов.
	ShapeMany
	// ShapePage: конверт пагинации {count, next, previous, results}.
	ShapePage
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeMany:
		return "many"
	case ShapePage:
		return "page"
	default:
		return "empty"
	}
}

// Raw описывает ответ API, форма которого определена один раз на границе.
type Raw struct {
	Shape    Shape
	Records  []Record
	Count    int
	Next     string
	Previous string
}

// Decode определяет форму ответа и извлекает из него записи.
func Decode(body []byte) (Raw, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Raw{Shape: ShapeEmpty, Records: []Record{}}, nil
	}

	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return Raw{}, fmt.Errorf("decode response: %w", err)
	}

	switch x := v.(type) {
	case []any:
		records := objects(x)
		return Raw{Shape: ShapeMany, Records: records, Count: len(records)}, nil
	case map[string]any:
		if results, ok := x["results"].([]any); ok {
			records := objects(results)
			count := len(records)
			if n, ok := toInt(x["count"]); ok {
				count = int(n)
			}
			return Raw{
				Shape:    ShapePage,
				Records:  records,
				Count:    count,
				Next:     toString(x["next"]),
				Previous: toString(x["previous"]),
			}, nil
		}
		return Raw{Shape: ShapeSingle, Records: []Record{x}, Count: 1}, nil
	default:
		return Raw{}, fmt.Errorf("decode response: unexpected JSON %T", v)
	}
}

// First возвращает первую запись, если она есть.
func (r Raw) First() (Record, bool) {
	if len(r.Records) == 0 {
		return nil, false
	}
	return r.Records[0], true
}

// UnwrapCollection возвращает записи ответа любой формы в виде последовательности.
func UnwrapCollection(body []byte) ([]Record, error) {
	raw, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return raw.Records, nil
}

// UnwrapOne возвращает единственную запись ответа или первую запись коллекции.
func UnwrapOne(body []byte) (Record, bool, error) {
	raw, err := Decode(body)
	if err != nil {
		return nil, false, err
	}
	rec, ok := raw.First()
	return rec, ok, nil
}

func objects(items []any) []Record {
	out := make([]Record, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

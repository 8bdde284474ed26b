package pardo

import (
	"context"
	"strings"

	"github.com/zendesk/clj-headlights/internal/codec"
)

func mapValue(f func(string) string) Func {
	return func(_ context.Context, rec codec.Record, emit func(codec.Record)) error {
		rec.Value = f(rec.Value)
		emit(rec)
		return nil
	}
}

func init() {
	Register(Module{
		Name: "strings",
		Funcs: map[string]Func{
			"upper": mapValue(strings.ToUpper),
			"lower": mapValue(strings.ToLower),
		},
	})
	Register(Module{
		Name:     "lines",
		Requires: []string{"strings"},
		Funcs: map[string]Func{
			"trim": mapValue(strings.TrimSpace),
			"drop-empty": func(_ context.Context, rec codec.Record, emit func(codec.Record)) error {
				if rec.Value != "" {
					emit(rec)
				}
				return nil
			},
		},
	})
}

package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/web"
)

type scriptedDates struct {
	outputs []map[string]any
	calls   int
}

func (s *scriptedDates) Call(context.Context, string, string, string) (map[string]any, error) {
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	return out, nil
}

func TestDateExtractor(t *testing.T) {
	caller := &scriptedDates{outputs: []map[string]any{
		{"year": 2019.0, "month": 4.0, "day": nil},
		{"year": 2022.0, "month": nil, "day": nil},
	}}
	e := NewDateExtractor(caller)

	doc := web.NewDocument("ord.pdf", []byte("raw"), []string{
		"adopted April 2019", "amended 2022", "never checked",
	})
	date, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)

	// The most recent year wins and only the leading pages are checked.
	assert.Equal(t, 2022, date.Year)
	assert.Equal(t, 2, caller.calls)
}

func TestDateExtractorNoDate(t *testing.T) {
	caller := &scriptedDates{outputs: []map[string]any{
		{"year": nil, "month": nil, "day": nil},
	}}
	e := NewDateExtractor(caller)

	doc := web.NewDocument("ord.pdf", []byte("raw"), []string{"no dates here"})
	date, err := e.Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, web.Date{}, date)
}

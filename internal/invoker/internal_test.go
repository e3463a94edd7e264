package invoker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "plain", raw: ` {"a":1} `, want: `{"a":1}`, ok: true},
		{name: "fenced", raw: "text\n```json\n{\"a\":{\"b\":2}}\n```", want: `{"a":{"b":2}}`, ok: true},
		{name: "bare fence", raw: "```\n{\"a\":1}\n```", want: `{"a":1}`, ok: true},
		{name: "surrounded", raw: `Sure! {"a":[1,2]} hope it helps`, want: `{"a":[1,2]}`, ok: true},
		{name: "truncated", raw: `{"a":`, ok: false},
		{name: "no object", raw: "nothing here", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractJSON(tc.raw)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	initial, max := 300*time.Millisecond, 3*time.Second
	assert.Equal(t, 300*time.Millisecond, Backoff(0, initial, max, 0))
	assert.Equal(t, 1200*time.Millisecond, Backoff(2, initial, max, 0))
	assert.Equal(t, 3*time.Second, Backoff(10, initial, max, 0))
	assert.Equal(t, 3300*time.Millisecond, Backoff(10, initial, max, 1))
	assert.Equal(t, 270*time.Millisecond, Backoff(0, initial, max, -1))
}

package queue

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
)

func TestRetryCount(t *testing.T) {
	tests := []struct {
		name     string
		headers  amqp.Table
		expected int
	}{
		{
			name:     "no headers",
			headers:  nil,
			expected: 0,
		},
		{
			name:     "no x-death entry",
			headers:  amqp.Table{"content-type": "application/json"},
			expected: 0,
		},
		{
			name: "single death entry",
			headers: amqp.Table{
				"x-death": []interface{}{
					amqp.Table{"count": int64(2), "queue": "malscan.jobs"},
				},
			},
			expected: 2,
		},
		{
			name: "multiple death entries accumulate",
			headers: amqp.Table{
				"x-death": []interface{}{
					amqp.Table{"count": int64(2)},
					amqp.Table{"count": int64(1)},
				},
			},
			expected: 3,
		},
		{
			name: "malformed entries skipped",
			headers: amqp.Table{
				"x-death": []interface{}{
					"not-a-table",
					amqp.Table{"count": "not-a-number"},
					amqp.Table{"count": int64(1)},
				},
			},
			expected: 1,
		},
		{
			name: "x-death not a list",
			headers: amqp.Table{
				"x-death": "bogus",
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := amqp.Delivery{Headers: tt.headers}
			assert.Equal(t, tt.expected, RetryCount(d))
		})
	}
}

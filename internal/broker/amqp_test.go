package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestHeadersToTable(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    amqp.Table
	}{
		{name: "nil headers", headers: nil, want: nil},
		{name: "empty headers", headers: map[string]string{}, want: nil},
		{
			name:    "values copied",
			headers: map[string]string{"someproperty": "property.value"},
			want:    amqp.Table{"someproperty": "property.value"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, headersToTable(tt.headers))
		})
	}
}

func TestTableToHeaders(t *testing.T) {
	tests := []struct {
		name  string
		table amqp.Table
		want  map[string]string
	}{
		{name: "nil table", table: nil, want: nil},
		{
			name:  "strings pass through",
			table: amqp.Table{"k": "v"},
			want:  map[string]string{"k": "v"},
		},
		{
			name:  "foreign values stringified",
			table: amqp.Table{"count": int32(7), "flag": true},
			want:  map[string]string{"count": "7", "flag": "true"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tableToHeaders(tt.table))
		})
	}
}

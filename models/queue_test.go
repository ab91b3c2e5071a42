package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueTicketReady(t *testing.T) {
	tests := []struct {
		name   string
		ticket *QueueTicket
		ready  bool
	}{
		{"nil ticket", nil, false},
		{"front of line", &QueueTicket{Position: 1, Total: 10}, true},
		{"position zero", &QueueTicket{Position: 0, Total: 10}, true},
		{"waiting", &QueueTicket{Position: 3, Total: 10}, false},
		{"processing overrides position", &QueueTicket{Position: 7, Total: 10, IsProcessing: true}, true},
		{"lost position", &QueueTicket{Position: PositionLost}, false},
		{"lost position with processing flag", &QueueTicket{Position: PositionLost, IsProcessing: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ready, tt.ticket.Ready())
		})
	}
}

func TestQueueTicketLost(t *testing.T) {
	assert.True(t, (&QueueTicket{Position: PositionLost}).Lost())
	assert.False(t, (&QueueTicket{Position: 1}).Lost())
	assert.False(t, (*QueueTicket)(nil).Lost())
}

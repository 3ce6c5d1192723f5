package utils

import (
	"testing"

	"fiscal-offline-go/internal/core/models"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", FormatBytes(1024*1024*1024))
}

func TestGetSystemStats(t *testing.T) {
	stats := GetSystemStats(models.QueueStats{Pending: 2, Total: 2}, 3)

	assert.Positive(t, stats.NumCPU)
	assert.Positive(t, stats.GoRoutines)
	assert.Equal(t, 2, stats.Queue.Pending)
	assert.Equal(t, 3, stats.SSEClients)
	assert.NotEmpty(t, stats.Memory)
	assert.False(t, stats.Timestamp.IsZero())
}

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 5 * time.Minute}

	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(4))
	assert.Equal(t, 5*time.Minute, b.Delay(10))
	assert.Equal(t, 5*time.Minute, b.Delay(100))
}

func TestBackoffDelay_Unconfigured(t *testing.T) {
	assert.Equal(t, time.Duration(0), Backoff{}.Delay(3))
	assert.Equal(t, 4*time.Second, Backoff{Initial: time.Second}.Delay(3))
}

package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFulfillmentKey(t *testing.T) {
	assert.Equal(t, "fulfill:lock:order:42", FulfillmentKey(42))
}

func TestNewRedisLocker_MinimumRetries(t *testing.T) {
	l := NewRedisLocker(nil, 0, 0)
	assert.Equal(t, 1, l.maxRetries)
}

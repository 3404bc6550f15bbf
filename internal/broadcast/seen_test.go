// ABOUTME: Tests for the seen-message cache
// ABOUTME: Covers TTL expiry and the capacity bound

package broadcast

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeenCacheMarksAndDetects(t *testing.T) {
	c := newSeenCache(time.Minute, 100)

	assert.False(t, c.checkAndMark("a"))
	assert.True(t, c.checkAndMark("a"))
	assert.False(t, c.checkAndMark("b"))
}

func TestSeenCacheExpires(t *testing.T) {
	c := newSeenCache(10*time.Millisecond, 100)

	assert.False(t, c.checkAndMark("a"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, c.checkAndMark("a"))
}

func TestSeenCacheBoundsSize(t *testing.T) {
	c := newSeenCache(time.Hour, 10)

	for i := 0; i < 100; i++ {
		c.checkAndMark(fmt.Sprintf("id-%d", i))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.LessOrEqual(t, len(c.entries), 11)
}

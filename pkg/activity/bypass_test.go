package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticBypass(t *testing.T) {
	assert.True(t, StaticBypass(true).ShouldBypass())
	assert.False(t, StaticBypass(false).ShouldBypass())
}

func TestToggleBypass(t *testing.T) {
	tb := NewToggleBypass(false)
	assert.False(t, tb.ShouldBypass())

	tb.Set(true)
	assert.True(t, tb.ShouldBypass())

	tb.Set(false)
	assert.False(t, tb.ShouldBypass())
}

func TestCompatVersionBypass(t *testing.T) {
	assert.True(t, NewCompatVersionBypass(1, 3).ShouldBypass(), "current below threshold must bypass")
	assert.False(t, NewCompatVersionBypass(3, 3).ShouldBypass(), "current equal to threshold must not bypass")
	assert.False(t, NewCompatVersionBypass(4, 3).ShouldBypass(), "current above threshold must not bypass")
	assert.False(t, NewCompatVersionBypass(1, 0).ShouldBypass(), "a zero threshold disables the check")
}

func TestOrBypass(t *testing.T) {
	assert.False(t, OrBypass{StaticBypass(false), NewCompatVersionBypass(3, 0)}.ShouldBypass())
	assert.True(t, OrBypass{StaticBypass(true), NewCompatVersionBypass(3, 0)}.ShouldBypass())
	assert.True(t, OrBypass{StaticBypass(false), NewCompatVersionBypass(1, 3)}.ShouldBypass())
	assert.False(t, OrBypass(nil).ShouldBypass())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("BOTPOOL_TEST_STR", "")
	assert.Equal(t, "fallback", GetEnv("BOTPOOL_TEST_STR", "fallback"))

	t.Setenv("BOTPOOL_TEST_STR", "value")
	assert.Equal(t, "value", GetEnv("BOTPOOL_TEST_STR", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("BOTPOOL_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("BOTPOOL_TEST_INT", 1))

	t.Setenv("BOTPOOL_TEST_INT", "not-a-number")
	assert.Equal(t, 1, GetEnvInt("BOTPOOL_TEST_INT", 1))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("BOTPOOL_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, GetEnvDuration("BOTPOOL_TEST_DUR", time.Second))

	t.Setenv("BOTPOOL_TEST_DUR", "soon")
	assert.Equal(t, time.Second, GetEnvDuration("BOTPOOL_TEST_DUR", time.Second))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("BOTPOOL_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("BOTPOOL_TEST_BOOL", false))

	t.Setenv("BOTPOOL_TEST_BOOL", "maybe")
	assert.False(t, GetEnvBool("BOTPOOL_TEST_BOOL", false))
}

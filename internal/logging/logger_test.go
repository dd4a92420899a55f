package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	Init("production", "debug")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Init("production", "nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

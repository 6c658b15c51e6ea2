package netlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainingReturnsNonNilEvent(t *testing.T) {
	log := New("test")
	ev := log.Info("hello").Str("k", "v").Int("n", 1)
	assert.NotNil(t, ev)
	ev.Send()
}

func TestSuccessDoesNotPanic(t *testing.T) {
	log := New("test")
	assert.NotPanics(t, func() {
		log.Success("done").Dur("elapsed", 0).Send()
	})
}

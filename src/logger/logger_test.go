package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Packages may log through L before main wires the JSON handler, so the
// global must never start nil.
func TestGlobalLoggerUsableBeforeInit(t *testing.T) {
	assert.NotNil(t, L)
	assert.NotPanics(t, func() {
		L.Warn("message before InitLogger")
	})
	assert.NotPanics(t, func() {
		FromContext(context.Background()).Warn("contextual fallback before InitLogger")
	})
}

func TestContextRoundTrip(t *testing.T) {
	InitLogger("error")

	child := L.With("requestID", "abc")
	ctx := ToContext(context.Background(), child)
	assert.Same(t, child, FromContext(ctx))
	assert.Same(t, L, FromContext(context.Background()))
}

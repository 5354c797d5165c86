// internal/tracing/tracing_test.go
package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := Init(Options{
		ServiceName: "policy-runtime-test",
		Endpoint:    "localhost:4317",
		Writer:      &buf,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "RunInference")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"RunInference"`)
	assert.Contains(t, buf.String(), "policy-runtime-test")
}

package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWithLoggerCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str(FieldSKU, "A100").Logger()

	ctx := WithLogger(context.Background(), logger)
	l := Ctx(ctx)
	l.Info().Msg("probing original")

	assert.Contains(t, buf.String(), `"sku":"A100"`)
	assert.Contains(t, buf.String(), "probing original")
}

func TestCtxFallsBackToGlobal(t *testing.T) {
	// A bare context must still yield a usable logger.
	l := Ctx(context.Background())
	l.Debug().Msg("no-op")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "WARN", want: zerolog.WarnLevel},
		{in: " error ", want: zerolog.ErrorLevel},
		{in: "nonsense", want: zerolog.InfoLevel},
		{in: "", want: zerolog.InfoLevel},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, parseLevel(test.in), "level %q", test.in)
	}
}

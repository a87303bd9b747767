package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSONArray_InvalidOpeningToken(t *testing.T) {
	// Valid JSON, but not an array.
	input := `"not an array"`
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(input))

	for range ch { //nolint:revive // drain
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "expected '['")
}

func TestDecodeJSONArray_DecodeError(t *testing.T) {
	// Second element is malformed; the first still comes through.
	input := `[{"sample_id":"GSM1","platform":"GPL24676"},{"sample_id":invalid}]`
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(input))

	var payloads []batchPayload
	for p := range ch {
		payloads = append(payloads, p)
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "json: decode element")
	assert.Len(t, payloads, 1)
}

func TestDecodeJSONArray_ContextCancelDuringSend(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := range 1000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"sample_id":"GSM1","platform":"GPL24676"}`)
	}
	sb.WriteString("]")

	ctx, cancel := context.WithCancel(context.Background())
	ch, errCh := DecodeJSONArray[batchPayload](ctx, strings.NewReader(sb.String()))

	<-ch
	cancel()

	for range ch { //nolint:revive // drain
	}
	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context")
	}
}

func TestDecodeJSONArray_TruncatedArray(t *testing.T) {
	// Missing closing bracket; must not panic either way.
	input := `[{"sample_id":"GSM1","platform":"GPL24676"}`
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(input))

	var payloads []batchPayload
	for p := range ch {
		payloads = append(payloads, p)
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	_ = payloads
	_ = gotErr
}

func TestDecodeJSONArray_MalformedOpeningJSON(t *testing.T) {
	input := `{{{invalid`
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(input))

	for range ch { //nolint:revive // drain
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
}

func TestDecodeJSONArray_NumberOpeningToken(t *testing.T) {
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(`42`))

	for range ch { //nolint:revive // drain
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "expected '['")
}

func TestDecodeJSONObject_EmptyInput(t *testing.T) {
	_, err := DecodeJSONObject[batchPayload](strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json: decode object")
}

func TestDecodeJSONArray_SingleElement(t *testing.T) {
	input := `[{"sample_id":"GSM99","platform":"GPL570"}]`
	ch, errCh := DecodeJSONArray[batchPayload](context.Background(), strings.NewReader(input))

	var payloads []batchPayload
	for p := range ch {
		payloads = append(payloads, p)
	}
	for err := range errCh {
		require.NoError(t, err)
	}

	require.Len(t, payloads, 1)
	assert.Equal(t, "GSM99", payloads[0].SampleID)
	assert.Equal(t, "GPL570", payloads[0].Platform)
}

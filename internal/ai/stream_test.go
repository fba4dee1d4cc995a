package ai

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, body string) []string {
	t.Helper()
	var got []string
	err := DecodeSSE(strings.NewReader(body), func(d string) bool {
		got = append(got, d)
		return true
	})
	require.NoError(t, err)
	return got
}

func TestDecodeSSE_DeltasInOrder(t *testing.T) {
	body := "" +
		`data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n\n" +
		`data: {"choices":[{"delta":{"content":"lo"}}]}` + "\n\n" +
		"data: [DONE]\n\n" +
		`data: {"choices":[{"delta":{"content":"after done"}}]}` + "\n\n"

	assert.Equal(t, []string{"Hel", "lo"}, collect(t, body))
}

func TestDecodeSSE_SkipsMalformedAndComments(t *testing.T) {
	body := "" +
		": OPENROUTER PROCESSING\n\n" +
		`data: {"choices":[{"delta":{"content":"a"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":` + "\n" +
		"event: message\n" +
		`data: {"choices":[]}` + "\n" +
		`data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
		`data:{"choices":[{"delta":{"content":"b"}}]}` + "\n" +
		"data: [DONE]\n"

	assert.Equal(t, []string{"a", "b"}, collect(t, body))
}

func TestDecodeSSE_EOFWithoutSentinel(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"x"}}]}` + "\n"
	assert.Equal(t, []string{"x"}, collect(t, body))
}

func TestDecodeSSE_EmitStops(t *testing.T) {
	body := "" +
		`data: {"choices":[{"delta":{"content":"1"}}]}` + "\n" +
		`data: {"choices":[{"delta":{"content":"2"}}]}` + "\n"

	var got []string
	err := DecodeSSE(strings.NewReader(body), func(d string) bool {
		got = append(got, d)
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, got)
}

func TestDecodeSSE_InStreamErrorEndsDecoding(t *testing.T) {
	errPayload := `{"error":{"message":"Rate limit exceeded","code":429}}`
	body := "" +
		`data: {"choices":[{"delta":{"content":"par"}}]}` + "\n\n" +
		"data: " + errPayload + "\n\n" +
		`data: {"choices":[{"delta":{"content":"never"}}]}` + "\n\n"

	var got []string
	err := DecodeSSE(strings.NewReader(body), func(d string) bool {
		got = append(got, d)
		return true
	})

	assert.Equal(t, []string{"par"}, got)
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, errPayload, respErr.Raw)
}

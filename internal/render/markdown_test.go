package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdown(t *testing.T) {
	r := New()

	out, err := r.Markdown("Use **range**:\n\n```go\nfor i := range xs {}\n```\n")
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "<strong>range</strong>")
	assert.Contains(t, s, `<code class="language-go">`)
}

func TestMarkdown_StripsScripts(t *testing.T) {
	r := New()

	out, err := r.Markdown(`hi <script>alert(1)</script> [x](javascript:alert(1))`)
	require.NoError(t, err)
	s := string(out)
	assert.NotContains(t, s, "<script")
	assert.NotContains(t, s, "javascript:")
}

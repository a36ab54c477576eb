package jsonx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Content string `json:"content"`
	Count   int64  `json:"count"`
}

func TestRoundTripKeepsMarkup(t *testing.T) {
	in := sample{Content: "I wonder <if> you & I are alike~", Count: 1 << 40}

	data, err := Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<if>")
	assert.Contains(t, string(data), "&")
	assert.True(t, Valid(data))

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestStreamCodec(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Encode(sample{Content: "hi", Count: 2}))

	var out sample
	require.NoError(t, NewDecoder(strings.NewReader(buf.String())).Decode(&out))
	assert.Equal(t, "hi", out.Content)
	assert.EqualValues(t, 2, out.Count)

	assert.False(t, Valid([]byte("{nope")))
}

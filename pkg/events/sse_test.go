package events

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSSEEvent(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive",
		"",
		"event: analysis.streaming",
		`data: {"content":"a"}`,
		"",
		"id: 7",
		"event: analysis.completed\r",
		`data: {"feedback":`,
		`data: {"score":1}}`,
		"",
		`data: {"type":"connected"}`,
		"",
		"",
	}, "\n")
	reader := bufio.NewReader(strings.NewReader(input))

	name, data, err := readSSEEvent(reader)
	require.NoError(t, err)
	assert.Equal(t, "analysis.streaming", name)
	assert.Equal(t, `{"content":"a"}`, string(data))

	name, data, err = readSSEEvent(reader)
	require.NoError(t, err)
	assert.Equal(t, "analysis.completed", name)
	assert.Equal(t, "{\"feedback\":\n{\"score\":1}}", string(data))

	name, data, err = readSSEEvent(reader)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, `{"type":"connected"}`, string(data))

	_, _, err = readSSEEvent(reader)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadSSEEvent_TruncatedFrame(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("event: upload.started\ndata: {}"))
	_, _, err := readSSEEvent(reader)
	assert.ErrorIs(t, err, io.EOF)
}

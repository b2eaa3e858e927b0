package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffersCopy(t *testing.T) {
	bufs := NewBuffers()
	src := []byte{1, 2, 3}

	p := bufs.Copy(src)
	require.Equal(t, src, *p)

	src[0] = 9
	require.Equal(t, byte(1), (*p)[0], "copy must not alias its source")

	bufs.Release(p)
	bufs.Release(nil)

	big := make([]byte, 10_000)
	big[9_999] = 7
	q := bufs.Copy(big)
	require.Len(t, *q, 10_000)
	require.Equal(t, byte(7), (*q)[9_999])
}

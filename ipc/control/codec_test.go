package control_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"

	"github.com/ioi-foundation/kernel/ipc/control"
)

func TestJSONCodecRoundTrips(t *testing.T) {
	codec := encoding.GetCodec(control.CodecName)
	require.NotNil(t, codec, "codec must self-register via control package init")

	req := &control.ChainHeightResponse{Height: 42}
	data, err := codec.Marshal(req)
	require.NoError(t, err)

	var got control.ChainHeightResponse
	require.NoError(t, codec.Unmarshal(data, &got))
	require.Equal(t, uint64(42), got.Height)
}

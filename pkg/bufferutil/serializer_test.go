package bufferutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/liquid-wallet/pkg/bufferutil"
)

func TestSerializerRoundTrip(t *testing.T) {
	s := bufferutil.NewSerializer(nil)
	require.NoError(t, s.WriteUint8(0xab))
	require.NoError(t, s.WriteUint32(0xdeadbeef))
	require.NoError(t, s.WriteUint64(1<<40))
	require.NoError(t, s.WriteVarSlice([]byte("payload")))
	require.NoError(t, s.WriteSlice([]byte{1, 2, 3}))

	d := bufferutil.NewDeserializer(s.Bytes())

	u8, err := d.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0xab), u8)

	u32, err := d.ReadUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := d.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<40), u64)

	payload, err := d.ReadVarSlice()
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), payload)

	tail, err := d.ReadSlice(3)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, tail)
	require.True(t, d.Empty())
}

func TestVarIntBoundaries(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000}
	s := bufferutil.NewSerializer(nil)
	for _, v := range values {
		require.NoError(t, s.WriteVarInt(v))
	}

	d := bufferutil.NewDeserializer(s.Bytes())
	for _, v := range values {
		got, err := d.ReadVarInt()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	require.True(t, d.Empty())
}

func TestDeserializerTruncated(t *testing.T) {
	d := bufferutil.NewDeserializer([]byte{0x01})
	_, err := d.ReadUint32()
	require.ErrorIs(t, err, bufferutil.ErrTruncatedBuffer)
}

func TestTxIDBytes(t *testing.T) {
	txid := "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225"
	buf, err := bufferutil.TxIDToBytes(txid)
	require.NoError(t, err)
	require.Len(t, buf, 32)
	require.Equal(t, txid, bufferutil.TxIDFromBytes(buf))
}

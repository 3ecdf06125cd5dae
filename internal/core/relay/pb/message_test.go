package pb

import (
	"bytes"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-relay/pkg/types"
)

func testNodeID(b byte) types.NodeID {
	var id types.NodeID
	id[0] = b
	id[31] = b
	return id
}

// TestHopMessage_Reservation 测试带预留信息的 STATUS 消息
func TestHopMessage_Reservation(t *testing.T) {
	relay := testNodeID(1)
	addr := ma.StringCast("/ip4/1.2.3.4/tcp/4001/p2p/" + relay.String() + "/p2p-circuit")
	expire := time.Unix(1_700_000_000, 0)

	in := &HopMessage{
		Type:        HopStatus,
		Reservation: &Reservation{Expire: expire, Addrs: []ma.Multiaddr{addr}},
		Limit:       &Limit{Duration: 2 * time.Minute, Data: 1 << 17},
		Status:      StatusOK,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMsg(&buf, in))

	var out HopMessage
	require.NoError(t, ReadMsg(&buf, &out))
	assert.Equal(t, HopStatus, out.Type)
	assert.Equal(t, StatusOK, out.Status)
	require.NotNil(t, out.Reservation)
	assert.True(t, expire.Equal(out.Reservation.Expire))
	require.Len(t, out.Reservation.Addrs, 1)
	assert.True(t, addr.Equal(out.Reservation.Addrs[0]))
	require.NotNil(t, out.Limit)
	assert.Equal(t, 2*time.Minute, out.Limit.Duration)
	assert.Equal(t, uint64(1<<17), out.Limit.Data)
	assert.Nil(t, out.Peer)
	assert.Zero(t, buf.Len())
}

// TestStopMessage_Connect 测试 STOP CONNECT 消息
func TestStopMessage_Connect(t *testing.T) {
	src := testNodeID(7)
	in := &StopMessage{Type: StopConnect, Peer: &Peer{ID: src}}

	var out StopMessage
	require.NoError(t, out.Unmarshal(in.Marshal()))
	assert.Equal(t, StopConnect, out.Type)
	require.NotNil(t, out.Peer)
	assert.Equal(t, src, out.Peer.ID)
	assert.Nil(t, out.Limit)
	assert.Equal(t, StatusUnused, out.Status)
}

// TestHopMessage_ReserveType 确认 RESERVE (=0) 的类型字段会被编码
func TestHopMessage_ReserveType(t *testing.T) {
	var out HopMessage
	require.NoError(t, out.Unmarshal((&HopMessage{Type: HopReserve}).Marshal()))
	assert.Equal(t, HopReserve, out.Type)
	assert.Nil(t, out.Limit)
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"missing type", appendVarint(nil, hopStatus, uint64(StatusOK))},
		{"truncated tag", []byte{0x80}},
		{"truncated bytes", append(protowire.AppendTag(nil, hopPeer, protowire.BytesType), 10, 1)},
		{"peer without id", appendMessage(appendVarint(nil, hopType, 1), hopPeer, nil)},
		{"bad peer id", appendMessage(appendVarint(nil, hopType, 1), hopPeer, appendMessage(nil, peerID, []byte{1, 2, 3}))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m HopMessage
			assert.ErrorIs(t, m.Unmarshal(tt.data), ErrMalformedMessage)
		})
	}
}

// TestUnmarshal_UnknownFields 未知字段被跳过
func TestUnmarshal_UnknownFields(t *testing.T) {
	b := (&HopMessage{Type: HopConnect, Peer: &Peer{ID: testNodeID(3)}}).Marshal()
	b = appendMessage(b, 42, []byte("future"))
	b = appendVarint(b, 43, 9)

	var m HopMessage
	require.NoError(t, m.Unmarshal(b))
	assert.Equal(t, HopConnect, m.Type)
	assert.Equal(t, testNodeID(3), m.Peer.ID)
}

func TestReadMsg_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(protowire.AppendVarint(nil, MaxMessageSize+1))
	var m HopMessage
	assert.ErrorIs(t, ReadMsg(&buf, &m), ErrMessageTooLarge)
}

func TestReadMsg_EOF(t *testing.T) {
	var m StopMessage
	assert.ErrorIs(t, ReadMsg(bytes.NewReader(nil), &m), io.EOF)

	// 长度前缀后数据不足
	assert.ErrorIs(t, ReadMsg(bytes.NewReader([]byte{5, 8}), &m), io.ErrUnexpectedEOF)
}

// TestReadMsg_NoOverRead 读取消息后剩余字节保持在流中
func TestReadMsg_NoOverRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMsg(&buf, &StopMessage{Type: StopStatus, Status: StatusOK}))
	buf.WriteString("payload")

	var m StopMessage
	require.NoError(t, ReadMsg(&buf, &m))
	assert.Equal(t, StatusOK, m.Status)
	assert.Equal(t, "payload", buf.String())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "NO_RESERVATION", StatusNoReservation.String())
	assert.Equal(t, "STATUS(7)", Status(7).String())
	assert.Equal(t, "CONNECT", HopConnect.String())
	assert.Equal(t, "STATUS", StopStatus.String())
}

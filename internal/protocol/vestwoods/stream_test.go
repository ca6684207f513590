package vestwoods

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(r *Reassembler, chunks ...[]byte) []Result {
	var out []Result
	for _, c := range chunks {
		out = append(out, r.Ingest(c)...)
	}
	return out
}

func TestReassembler_WholeFrame(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	r := NewReassembler(0, 0)

	res := r.Ingest(frame)
	require.Len(t, res, 1)
	require.NoError(t, res[0].Err)
	assert.Equal(t, frame, res[0].Frame)
	assert.Equal(t, []float64{3.3}, res[0].Telemetry.CellVoltages)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(1), r.Stats().Frames)
}

func TestReassembler_SplitAtEveryOffset(t *testing.T) {
	frame := telemetryFrame([]uint16{3300, 3301, 3302, 3303}, []uint16{70, 71}, 31000)
	want, err := Parse(frame)
	require.NoError(t, err)

	for cut := 1; cut < len(frame); cut++ {
		r := NewReassembler(0, 0)
		res := collect(r, frame[:cut], frame[cut:])
		require.Len(t, res, 1, "cut=%d", cut)
		assert.NoError(t, res[0].Err, "cut=%d", cut)
		assert.Equal(t, want, res[0].Telemetry, "cut=%d", cut)
		assert.Equal(t, 0, r.Buffered(), "cut=%d", cut)
	}
}

func TestReassembler_ByteByByte(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	r := NewReassembler(0, 0)

	var res []Result
	for i := range frame {
		got := r.Ingest(frame[i : i+1])
		if i < len(frame)-1 {
			assert.Empty(t, got, "frame emitted early at byte %d", i)
		}
		res = append(res, got...)
	}
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
}

func TestReassembler_ConcatenatedFrames(t *testing.T) {
	a := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	b := telemetryFrame([]uint16{3400, 3401}, []uint16{71}, 30500)
	r := NewReassembler(0, 0)

	res := r.Ingest(append(append([]byte(nil), a...), b...))
	require.Len(t, res, 2)
	assert.Equal(t, []float64{3.3}, res[0].Telemetry.CellVoltages)
	assert.Equal(t, []float64{3.4, 3.401}, res[1].Telemetry.CellVoltages)
	assert.Equal(t, 5.0, res[1].Telemetry.TotalCurrent)
	assert.Equal(t, 0, r.Buffered())
}

func TestReassembler_GarbageOnly(t *testing.T) {
	r := NewReassembler(0, 0)
	res := r.Ingest([]byte{0x00, 0x11, 0x22, 0xA7, 0xFF})
	assert.Empty(t, res)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(1), r.Stats().Desyncs)
	assert.Equal(t, uint64(5), r.Stats().DroppedBytes)
}

func TestReassembler_LeadingGarbage(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	r := NewReassembler(0, 0)

	res := r.Ingest(append([]byte{0x01, 0x02, 0x03}, frame...))
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, uint64(3), r.Stats().DroppedBytes)
}

func TestReassembler_WaitsForHeaderAndBody(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	r := NewReassembler(0, 0)

	assert.Empty(t, r.Ingest(frame[:3]))
	assert.Equal(t, 3, r.Buffered())
	assert.Empty(t, r.Ingest(frame[3:10]))
	assert.Equal(t, 10, r.Buffered())

	res := r.Ingest(frame[10:])
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
}

func TestReassembler_ResyncOnBadEndByte(t *testing.T) {
	good := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	// 伪帧头：声明长度 5，第 9 字节不是结束符
	fake := []byte{0x7A, 0x00, 0x05, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}
	r := NewReassembler(0, 0)

	res := r.Ingest(append(fake, good...))
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, good, res[0].Frame)
	assert.GreaterOrEqual(t, r.Stats().Resyncs, uint64(1))
	assert.Equal(t, 0, r.Buffered())
}

func TestReassembler_FramedButInvalid(t *testing.T) {
	bad := telemetryFrame([]uint16{3300}, []uint16{70}, 30000)
	bad[len(bad)-2] ^= 0xFF
	good := telemetryFrame([]uint16{3301}, []uint16{70}, 30000)
	r := NewReassembler(0, 0)

	res := r.Ingest(append(append([]byte(nil), bad...), good...))
	require.Len(t, res, 2)

	assert.Nil(t, res[0].Telemetry)
	assert.True(t, errors.Is(res[0].Err, ErrBadCRC))
	assert.Equal(t, ReasonBadCRC, RejectReason(res[0].Err))

	require.NoError(t, res[1].Err)
	assert.Equal(t, []float64{3.301}, res[1].Telemetry.CellVoltages)

	st := r.Stats()
	assert.Equal(t, uint64(1), st.Frames)
	assert.Equal(t, uint64(1), st.Rejected)
}

func TestReassembler_BufferCap(t *testing.T) {
	r := NewReassembler(64, 0)

	// 声明长度 250 的帧头，永远凑不齐
	head := []byte{0x7A, 0x00, 0xFA, 0x00}
	assert.Empty(t, r.Ingest(head))
	assert.Empty(t, r.Ingest(bytes.Repeat([]byte{0x00}, 40)))
	assert.Equal(t, 44, r.Buffered())

	assert.Empty(t, r.Ingest(bytes.Repeat([]byte{0x00}, 40)))
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(1), r.Stats().Desyncs)

	// 清空后可继续同步
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	res := r.Ingest(frame)
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
}

func TestReassembler_CapAppliesAfterExtraction(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	r := NewReassembler(len(frame)+10, 0)

	// 一次到达两帧，总长超过上限，仍应全部切出
	res := r.Ingest(append(append([]byte(nil), frame...), frame...))
	require.Len(t, res, 2)
	assert.NoError(t, res[0].Err)
	assert.NoError(t, res[1].Err)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(0), r.Stats().Desyncs)

	// 完整帧后跟一个超限的半帧：帧照常输出，半帧被清空
	tail := append([]byte{0x7A, 0x00, 0xFA, 0x00}, bytes.Repeat([]byte{0x00}, len(frame)+10)...)
	res = r.Ingest(append(append([]byte(nil), frame...), tail...))
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, uint64(1), r.Stats().Desyncs)
}

func TestReassembler_IterationCapKeepsOversizedRemainder(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	var stream []byte
	for i := 0; i < 4; i++ {
		stream = append(stream, frame...)
	}
	r := NewReassembler(len(frame), 1)

	res := r.Ingest(stream)
	require.Len(t, res, 1)
	assert.Equal(t, 3*len(frame), r.Buffered(), "unprocessed frames are kept for the next call")

	total := len(res)
	for len(res) > 0 {
		res = r.Ingest(nil)
		total += len(res)
	}
	assert.Equal(t, 4, total)
	assert.Equal(t, uint64(0), r.Stats().Desyncs)
}

func TestReassembler_BufferNeverExceedsCap(t *testing.T) {
	r := NewReassembler(128, 0)
	chunk := []byte{0x7A, 0x00, 0xFF, 0x00, 0x01, 0x02, 0x03}
	for i := 0; i < 200; i++ {
		r.Ingest(chunk)
		require.LessOrEqual(t, r.Buffered(), 128)
	}
}

func TestReassembler_IterationCap(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, frame...)
	}
	r := NewReassembler(0, 2)

	res := r.Ingest(stream)
	assert.Len(t, res, 2)
	assert.Equal(t, 3*len(frame), r.Buffered())

	// 剩余数据在后续调用中继续处理
	res = r.Ingest(nil)
	assert.Len(t, res, 2)
	res = r.Ingest(nil)
	assert.Len(t, res, 1)
	assert.Equal(t, 0, r.Buffered())
}

func TestReassembler_Reset(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	r := NewReassembler(0, 0)
	r.Ingest(frame[:5])
	require.Equal(t, 5, r.Buffered())

	r.Reset()
	assert.Equal(t, 0, r.Buffered())

	res := r.Ingest(frame)
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
}

func TestReassembler_FrameIsCopied(t *testing.T) {
	frame := telemetryFrame([]uint16{3300}, nil, 30000)
	input := append([]byte(nil), frame...)
	r := NewReassembler(0, 0)

	res := r.Ingest(input)
	require.Len(t, res, 1)
	input[8] ^= 0xFF
	assert.Equal(t, frame, res[0].Frame)
}

package vestwoods

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// 帧格式：
// 0x7A | addr(1) | len(1) | rsv(1) | cmd(2, BE) | payload(..) | crc16(2, BE) | 0xA7
// len = 帧总长 - 4；crc 覆盖 addr 到 payload 末尾（不含起始符、crc 本身与结束符）
const (
	StartSentinel byte = 0x7A
	EndSentinel   byte = 0xA7

	// CmdRealtimeData 实时数据查询/应答命令码
	CmdRealtimeData uint16 = 0x0001

	// MinFrameLen 起止符 + 长度 + 命令 + CRC 所需的最小长度
	MinFrameLen = 8
	// HeaderLen 起始符到命令码结束
	HeaderLen = 6
	// TrailerLen crc16 + 结束符
	TrailerLen = 3

	lengthOffset  = 2
	commandOffset = 4
	lengthExtra   = 4
)

// PollCommand 轮询实时数据的固定请求帧
var PollCommand = []byte{0x7A, 0x00, 0x05, 0x00, 0x00, 0x01, 0x0C, 0xE5, 0xA7}

// 拒收原因
const (
	ReasonTooShort       = "too-short"
	ReasonBadSentinel    = "bad-sentinel"
	ReasonBadLength      = "bad-length"
	ReasonBadCRC         = "bad-crc"
	ReasonBadCommand     = "bad-command"
	ReasonDecodeOverflow = "decode-overflow"
)

var (
	ErrTooShort       = errors.New("frame too short")
	ErrBadSentinel    = errors.New("bad frame sentinel")
	ErrBadLength      = errors.New("bad frame length")
	ErrBadCRC         = errors.New("crc mismatch")
	ErrBadCommand     = errors.New("unexpected command code")
	ErrDecodeOverflow = errors.New("declared count exceeds frame")
)

var reasonErrors = map[string]error{
	ReasonTooShort:       ErrTooShort,
	ReasonBadSentinel:    ErrBadSentinel,
	ReasonBadLength:      ErrBadLength,
	ReasonBadCRC:         ErrBadCRC,
	ReasonBadCommand:     ErrBadCommand,
	ReasonDecodeOverflow: ErrDecodeOverflow,
}

// RejectError 帧拒收错误，携带原因与诊断信息
type RejectError struct {
	Reason string
	Detail string
}

func (e *RejectError) Error() string {
	if e.Detail == "" {
		return "frame rejected: " + e.Reason
	}
	return fmt.Sprintf("frame rejected: %s (%s)", e.Reason, e.Detail)
}

// Unwrap 使 errors.Is(err, ErrBadCRC) 等判断成立
func (e *RejectError) Unwrap() error { return reasonErrors[e.Reason] }

func reject(reason, format string, args ...any) *RejectError {
	return &RejectError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// RejectReason 返回拒收原因；非拒收错误返回空串
func RejectReason(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}

// BuildRequest 构造不带载荷的请求帧
func BuildRequest(cmd uint16) []byte {
	return Build(cmd, nil)
}

// Build 构造一帧完整数据（用于下行请求与测试夹具）
func Build(cmd uint16, payload []byte) []byte {
	total := HeaderLen + len(payload) + TrailerLen
	buf := make([]byte, 0, total)
	buf = append(buf, StartSentinel, 0x00, byte(total-lengthExtra), 0x00)
	buf = binary.BigEndian.AppendUint16(buf, cmd)
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint16(buf, Checksum(buf[1:]))
	return append(buf, EndSentinel)
}

// Validate 校验候选字节序列；返回 nil 表示可解码
func Validate(b []byte) error {
	n := len(b)
	if n < MinFrameLen {
		return reject(ReasonTooShort, "len=%d min=%d", n, MinFrameLen)
	}
	if b[0] != StartSentinel || b[n-1] != EndSentinel {
		return reject(ReasonBadSentinel, "start=0x%02X end=0x%02X", b[0], b[n-1])
	}
	if want := int(b[lengthOffset]) + lengthExtra; n != want {
		return reject(ReasonBadLength, "expected=%d got=%d", want, n)
	}
	got := binary.BigEndian.Uint16(b[n-TrailerLen : n-1])
	if want := Checksum(b[1 : n-TrailerLen]); got != want {
		return reject(ReasonBadCRC, "frame=0x%04X calculated=0x%04X", got, want)
	}
	if cmd := binary.BigEndian.Uint16(b[commandOffset:HeaderLen]); cmd != CmdRealtimeData {
		return reject(ReasonBadCommand, "cmd=0x%04X", cmd)
	}
	return nil
}

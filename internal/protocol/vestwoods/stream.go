package vestwoods

import "bytes"

const (
	// DefaultMaxBuffer 缓冲上限，超过视为失步并整体清空
	DefaultMaxBuffer = 4096
	// DefaultMaxIterations 单次 Ingest 最多处理的候选帧/重同步次数
	DefaultMaxIterations = 1024
)

// Result 重组出的一个候选帧及其解码结果（Telemetry 与 Err 二选一）
type Result struct {
	Frame     []byte
	Telemetry *Telemetry
	Err       error
}

// Stats 重组器累计统计
type Stats struct {
	Frames       uint64 `json:"frames"`
	Rejected     uint64 `json:"rejected"`
	Desyncs      uint64 `json:"desyncs"`
	Resyncs      uint64 `json:"resyncs"`
	DroppedBytes uint64 `json:"dropped_bytes"`
}

// Reassembler 处理 BLE 通知的半包/粘包，按起始符+长度切分出完整帧
// 非并发安全：由持有者串行调用
type Reassembler struct {
	buf           []byte
	maxBuffer     int
	maxIterations int
	stats         Stats
}

// NewReassembler 创建重组器；参数 <=0 时使用默认值
func NewReassembler(maxBuffer, maxIterations int) *Reassembler {
	if maxBuffer <= 0 {
		maxBuffer = DefaultMaxBuffer
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Reassembler{maxBuffer: maxBuffer, maxIterations: maxIterations}
}

// Ingest 追加数据并尽可能切出多帧
// 先切帧后检查上限：只有切帧后仍残留的半帧超过 maxBuffer 才视为失步清空。
// 迭代次数用尽时剩余数据保留，调用方可用 Ingest(nil) 继续处理。
func (r *Reassembler) Ingest(chunk []byte) []Result {
	r.buf = append(r.buf, chunk...)

	var out []Result
	for i := 0; ; i++ {
		if i == r.maxIterations {
			// 迭代用尽，剩余数据留待下次
			return out
		}
		start := bytes.IndexByte(r.buf, StartSentinel)
		if start < 0 {
			if len(r.buf) > 0 {
				r.desync()
			}
			return out
		}
		if start > 0 {
			r.drop(start)
		}
		if len(r.buf) < 4 {
			break
		}
		total := int(r.buf[lengthOffset]) + lengthExtra
		if len(r.buf) < total {
			break
		}
		if r.buf[total-1] != EndSentinel {
			// 结束符不匹配：只丢起始字节，后续可能嵌有真正的帧头
			r.stats.Resyncs++
			r.drop(1)
			continue
		}

		frame := make([]byte, total)
		copy(frame, r.buf[:total])
		r.consume(total)

		t, err := Parse(frame)
		if err != nil {
			r.stats.Rejected++
		} else {
			r.stats.Frames++
		}
		out = append(out, Result{Frame: frame, Telemetry: t, Err: err})
	}

	if len(r.buf) > r.maxBuffer {
		// 长时间凑不齐的半帧，整体丢弃重新同步
		r.desync()
	}
	return out
}

// Buffered 当前缓冲字节数
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Reset 清空缓冲
func (r *Reassembler) Reset() { r.buf = r.buf[:0] }

// Stats 返回累计统计快照
func (r *Reassembler) Stats() Stats { return r.stats }

func (r *Reassembler) desync() {
	r.stats.Desyncs++
	r.stats.DroppedBytes += uint64(len(r.buf))
	r.buf = r.buf[:0]
}

func (r *Reassembler) drop(n int) {
	r.stats.DroppedBytes += uint64(n)
	r.consume(n)
}

func (r *Reassembler) consume(n int) {
	r.buf = append(r.buf[:0], r.buf[n:]...)
}

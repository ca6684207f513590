package vestwoods

import (
	"encoding/binary"
	"math"
)

// Parse 校验并解码一帧
func Parse(b []byte) (*Telemetry, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}
	return decode(b)
}

// Decode 解码一帧实时数据；内部先做完整校验，因此对任意输入都是安全的
func Decode(b []byte) (*Telemetry, error) {
	return Parse(b)
}

// reader 有界顺序读取器，end 为 CRC 字段起始位置
type reader struct {
	b   []byte
	off int
	end int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > r.end {
		r.err = reject(ReasonDecodeOverflow, "offset=%d need=%d payload_end=%d", r.off, n, r.end)
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.b[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.b[r.off : r.off+2])
	r.off += 2
	return v
}

// temp16 / temp8 温度偏移 50℃
func (r *reader) temp16() int { return int(r.u16()) - 50 }
func (r *reader) temp8() int  { return int(r.u8()) - 50 }

// milli 电压 mV -> V，保留 3 位
func (r *reader) milli() float64 { return round(float64(r.u16())/1000, 3) }

// centi 数值 /100，保留 2 位
func (r *reader) centi() float64 { return round(float64(r.u16())/100, 2) }

func decode(b []byte) (*Telemetry, error) {
	r := &reader{b: b, off: HeaderLen, end: len(b) - TrailerLen}
	t := &Telemetry{}

	t.OnlineStatus = r.u8()
	t.BatteriesSeriesNumber = r.u8()
	n := int(t.BatteriesSeriesNumber)
	if r.need(2 * n) {
		t.CellVoltages = make([]float64, n)
		for i := 0; i < n; i++ {
			// 最高位为均衡标志，需屏蔽
			t.CellVoltages[i] = round(float64(r.u16()&0x7FFF)/1000, 3)
		}
	}
	t.MaxCellNumber = r.u8()
	t.MaxCellVoltage = r.milli()
	t.MinCellNumber = r.u8()
	t.MinCellVoltage = r.milli()
	// 电流以 -300A 为零点偏移
	t.TotalCurrent = round(float64(r.u16())/100-300, 2)
	t.SOC = r.centi()
	t.SOH = r.centi()
	t.ActualCapacity = r.centi()
	t.SurplusCapacity = r.centi()
	t.NominalCapacity = r.centi()

	t.BatteriesTemperatureNumber = r.u8()
	m := int(t.BatteriesTemperatureNumber)
	if r.need(2 * m) {
		t.CellTemperatures = make([]int, m)
		for i := 0; i < m; i++ {
			t.CellTemperatures[i] = r.temp16()
		}
	}
	t.EnvironmentalTemperature = r.temp16()
	t.PCBTemperature = r.temp16()
	t.MaxTemperatureCellNumber = r.u8()
	t.MaxTemperatureCellValue = r.temp8()
	t.MinTemperatureCellNumber = r.u8()
	t.MinTemperatureCellValue = r.temp8()

	t.BMSFault1 = r.u8()
	t.BMSFault2 = r.u8()
	t.BMSAlert1 = r.u8()
	t.BMSAlert2 = r.u8()
	t.BMSAlert3 = r.u8()
	t.BMSAlert4 = r.u8()

	t.CycleIndex = r.u16()
	t.TotalVoltage = r.centi()
	t.BMSStatus = r.u8()

	if r.err != nil {
		return nil, r.err
	}
	return t, nil
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

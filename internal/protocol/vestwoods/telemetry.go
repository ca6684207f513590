package vestwoods

import "strconv"

// Telemetry 一帧实时数据（命令 0x0001）的解码结果
// 故障/告警/状态字节保持原始值，不做位解释
type Telemetry struct {
	OnlineStatus          uint8     `json:"onlineStatus"`
	BatteriesSeriesNumber uint8     `json:"batteriesSeriesNumber"`
	CellVoltages          []float64 `json:"cellVoltages"`
	MaxCellNumber         uint8     `json:"maxCellNumber"`
	MaxCellVoltage        float64   `json:"maxCellVoltage"`
	MinCellNumber         uint8     `json:"minCellNumber"`
	MinCellVoltage        float64   `json:"minCellVoltage"`
	TotalCurrent          float64   `json:"totalCurrent"`
	SOC                   float64   `json:"soc"`
	SOH                   float64   `json:"soh"`
	ActualCapacity        float64   `json:"actualCapacity"`
	SurplusCapacity       float64   `json:"surplusCapacity"`
	NominalCapacity       float64   `json:"nominalCapacity"`

	BatteriesTemperatureNumber uint8 `json:"batteriesTemperatureNumber"`
	CellTemperatures           []int `json:"cellTemperatures"`
	EnvironmentalTemperature   int   `json:"environmentalTemperature"`
	PCBTemperature             int   `json:"pcbTemperature"`
	MaxTemperatureCellNumber   uint8 `json:"maxTemperatureCellNumber"`
	MaxTemperatureCellValue    int   `json:"maxTemperatureCellValue"`
	MinTemperatureCellNumber   uint8 `json:"minTemperatureCellNumber"`
	MinTemperatureCellValue    int   `json:"minTemperatureCellValue"`

	BMSFault1 uint8 `json:"bmsFault1"`
	BMSFault2 uint8 `json:"bmsFault2"`
	BMSAlert1 uint8 `json:"bmsAlert1"`
	BMSAlert2 uint8 `json:"bmsAlert2"`
	BMSAlert3 uint8 `json:"bmsAlert3"`
	BMSAlert4 uint8 `json:"bmsAlert4"`

	CycleIndex   uint16  `json:"cycleIndex"`
	TotalVoltage float64 `json:"totalVoltage"`
	BMSStatus    uint8   `json:"bmsStatus"`
}

// Field 扁平化后的单个发布项
type Field struct {
	Key   string
	Value any
}

// Fields 按协议顺序展开所有字段；序列字段按 1 起始下标展开为 cellVoltage_N / cellTemperature_N
func (t *Telemetry) Fields() []Field {
	out := make([]Field, 0, 32+len(t.CellVoltages)+len(t.CellTemperatures))
	add := func(k string, v any) { out = append(out, Field{Key: k, Value: v}) }

	add("onlineStatus", t.OnlineStatus)
	add("batteriesSeriesNumber", t.BatteriesSeriesNumber)
	for i, v := range t.CellVoltages {
		add(CellVoltageKey(i+1), v)
	}
	add("maxCellNumber", t.MaxCellNumber)
	add("maxCellVoltage", t.MaxCellVoltage)
	add("minCellNumber", t.MinCellNumber)
	add("minCellVoltage", t.MinCellVoltage)
	add("totalCurrent", t.TotalCurrent)
	add("soc", t.SOC)
	add("soh", t.SOH)
	add("actualCapacity", t.ActualCapacity)
	add("surplusCapacity", t.SurplusCapacity)
	add("nominalCapacity", t.NominalCapacity)
	add("batteriesTemperatureNumber", t.BatteriesTemperatureNumber)
	for i, v := range t.CellTemperatures {
		add(CellTemperatureKey(i+1), v)
	}
	add("environmentalTemperature", t.EnvironmentalTemperature)
	add("pcbTemperature", t.PCBTemperature)
	add("maxTemperatureCellNumber", t.MaxTemperatureCellNumber)
	add("maxTemperatureCellValue", t.MaxTemperatureCellValue)
	add("minTemperatureCellNumber", t.MinTemperatureCellNumber)
	add("minTemperatureCellValue", t.MinTemperatureCellValue)
	add("bmsFault1", t.BMSFault1)
	add("bmsFault2", t.BMSFault2)
	add("bmsAlert1", t.BMSAlert1)
	add("bmsAlert2", t.BMSAlert2)
	add("bmsAlert3", t.BMSAlert3)
	add("bmsAlert4", t.BMSAlert4)
	add("cycleIndex", t.CycleIndex)
	add("totalVoltage", t.TotalVoltage)
	add("bmsStatus", t.BMSStatus)
	return out
}

// CellVoltageKey 单体电压字段名（1 起始）
func CellVoltageKey(i int) string { return "cellVoltage_" + strconv.Itoa(i) }

// CellTemperatureKey 单体温度字段名（1 起始）
func CellTemperatureKey(i int) string { return "cellTemperature_" + strconv.Itoa(i) }

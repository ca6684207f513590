package vestwoods

import "fmt"

// Sensor 发布字段的展示元数据（供上层实体注册/接口展示，不参与编解码）
type Sensor struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Unit        string `json:"unit,omitempty"`
	DeviceClass string `json:"device_class,omitempty"`
}

var baseSensors = []Sensor{
	{Key: "totalVoltage", Name: "Total Voltage", Unit: "V", DeviceClass: "voltage"},
	{Key: "soc", Name: "State of Charge", Unit: "%", DeviceClass: "battery"},
	{Key: "totalCurrent", Name: "Total Current", Unit: "A", DeviceClass: "current"},
	{Key: "environmentalTemperature", Name: "Environmental Temperature", Unit: "°C", DeviceClass: "temperature"},
	{Key: "pcbTemperature", Name: "PCB Temperature", Unit: "°C", DeviceClass: "temperature"},
	{Key: "soh", Name: "State of Health", Unit: "%"},
	{Key: "maxCellVoltage", Name: "Max Cell Voltage", Unit: "V", DeviceClass: "voltage"},
	{Key: "minCellVoltage", Name: "Min Cell Voltage", Unit: "V", DeviceClass: "voltage"},
	{Key: "surplusCapacity", Name: "Remaining Capacity", Unit: "Ah"},
	{Key: "nominalCapacity", Name: "Nominal Capacity", Unit: "Ah"},
	{Key: "cycleIndex", Name: "Cycle Count"},
}

// Sensors 返回按期望电芯数/温感数展开的传感器目录
func Sensors(cellCount, tempCount int) []Sensor {
	out := make([]Sensor, 0, len(baseSensors)+cellCount+tempCount)
	out = append(out, baseSensors...)
	for i := 1; i <= cellCount; i++ {
		out = append(out, Sensor{
			Key:         CellVoltageKey(i),
			Name:        fmt.Sprintf("Cell %d Voltage", i),
			Unit:        "V",
			DeviceClass: "voltage",
		})
	}
	for i := 1; i <= tempCount; i++ {
		out = append(out, Sensor{
			Key:         CellTemperatureKey(i),
			Name:        fmt.Sprintf("Cell Temperature %d", i),
			Unit:        "°C",
			DeviceClass: "temperature",
		})
	}
	return out
}

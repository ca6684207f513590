package vestwoods

import "github.com/sigurn/crc16"

// BMS 固件使用 CRC-16/MODBUS：反射多项式 0xA001，初值 0xFFFF，无结果异或
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum 计算给定字节区间的 CRC16，区间由调用方决定
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

package service

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseDeviceAddress 解析 "00:06:66:D0:E6:2F" 格式的蓝牙地址，按书写顺序返回
func ParseDeviceAddress(s string) ([6]byte, error) {
	var addr [6]byte
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != len(addr) {
		return addr, fmt.Errorf("invalid device address %q: want 6 colon-separated octets", s)
	}
	for i, p := range parts {
		if len(p) != 2 {
			return addr, fmt.Errorf("invalid device address %q: octet %q", s, p)
		}
		b, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return addr, fmt.Errorf("invalid device address %q: octet %q", s, p)
		}
		addr[i] = byte(b)
	}
	return addr, nil
}

// FormatDeviceAddress 是 ParseDeviceAddress 的逆操作
func FormatDeviceAddress(addr [6]byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", addr[0], addr[1], addr[2], addr[3], addr[4], addr[5])
}

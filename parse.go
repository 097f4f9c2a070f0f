package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	MCP9808_VALUE_MASK = 0x0FFF
	MCP9808_SIGN_BIT   = 0x1000
	MCP9808_LSB_PER_C  = 16.0
)

// parse_variable_result accepts a JSON number or a numeric string. Devices
// exposing a String variable report it quoted.
func parse_variable_result(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, fmt.Errorf("missing result")
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var val interface{}
	if err := dec.Decode(&val); err != nil {
		return 0, fmt.Errorf("decode result: %w", err)
	}

	switch v := val.(type) {
	case json.Number:
		n = v
	case string:
		n = json.Number(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("result %s is not numeric", string(raw))
	}

	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("result %q is not numeric", n.String())
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("result %q is not finite", n.String())
	}
	return f, nil
}

// rescale turns a raw device value into the value stored in the record.
func rescale(raw float64, decode string, scale float64) float64 {
	if decode == DECODE_MCP9808 {
		return decode_mcp9808(raw)
	}
	return raw / scale
}

// decode_mcp9808 reads the ambient temperature register: 12 bits of
// magnitude at 1/16 °C with bit 12 as the sign.
func decode_mcp9808(raw float64) float64 {
	reg := uint16(int64(raw))
	temperature := float64(reg&MCP9808_VALUE_MASK) / MCP9808_LSB_PER_C
	if reg&MCP9808_SIGN_BIT != 0 {
		temperature -= 256
	}
	return temperature
}

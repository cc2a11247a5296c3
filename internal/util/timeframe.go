package util

import (
	"fmt"
	"strconv"
	"strings"
)

// Timeframe is a broker-agnostic bar period code, modeled on the MT5
// TIMEFRAME_* integer constants so a Strategy or BotRegistration can carry
// a plain int rather than a broker-specific type.
type Timeframe int

// Supported timeframe codes, ordered shortest to longest.
const (
	M1 Timeframe = iota + 1
	M5
	M15
	M30
	H1
	H4
	D1
	W1
	MN1
)

var timeframeNames = map[Timeframe]string{
	M1:  "M1",
	M5:  "M5",
	M15: "M15",
	M30: "M30",
	H1:  "H1",
	H4:  "H4",
	D1:  "D1",
	W1:  "W1",
	MN1: "MN1",
}

// Name returns the human-readable timeframe code used in bot-id generation
// (e.g. "M5"), falling back to a numeric string for unknown codes.
func (tf Timeframe) Name() string {
	if name, ok := timeframeNames[tf]; ok {
		return name
	}
	return "TF" + strconv.Itoa(int(tf))
}

var timeframesByName = map[string]Timeframe{
	"M1": M1, "M5": M5, "M15": M15, "M30": M30,
	"H1": H1, "H4": H4, "D1": D1, "W1": W1, "MN1": MN1,
}

// ParseTimeframe maps a config-file timeframe code (e.g. "M5") back to its
// Timeframe constant, case-insensitively.
func ParseTimeframe(code string) (Timeframe, error) {
	if tf, ok := timeframesByName[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return tf, nil
	}
	return 0, fmt.Errorf("util: unknown timeframe code %q", code)
}

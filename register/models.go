package register

import (
	"fmt"
	"strings"
)

// froniusModels maps Fronius IG device type codes to model names.
var froniusModels = map[byte]string{
	0xFE: "FRONIUS IG 15",
	0xFD: "FRONIUS IG 20",
	0xFC: "FRONIUS IG 30",
	0xFB: "FRONIUS IG 30 Dummy",
	0xFA: "FRONIUS IG 40",
	0xF9: "FRONIUS IG 60",
	0xF6: "FRONIUS IG 300",
	0xF5: "FRONIUS IG 400",
	0xF4: "FRONIUS IG 500",
	0xF3: "FRONIUS IG 60 HV",
	0xEE: "FRONIUS IG 2000",
	0xED: "FRONIUS IG 3000",
	0xEB: "FRONIUS IG 4000",
	0xEA: "FRONIUS IG 5100",
	0xE5: "FRONIUS IG 2500-LV",
	0xE3: "FRONIUS IG 4500-LV",
	0xDF: "FRONIUS IG Plus 11.4-3 Delta",
	0xDE: "FRONIUS IG Plus 11.4-3 WYE277",
	0xDD: "FRONIUS IG Plus 3.0-1 UNI",
	0xDC: "FRONIUS IG Plus 3.8-1 UNI",
	0xDB: "FRONIUS IG Plus 5.0-1 UNI",
	0xDA: "FRONIUS IG Plus 6.0-1 UNI",
	0xD9: "FRONIUS IG Plus 7.5-1 UNI",
	0xD8: "FRONIUS IG Plus 10.0-1 UNI",
	0xD7: "FRONIUS IG Plus 11.4-1 UNI",
	0xD6: "FRONIUS IG Plus 12.0-3 WYE277",
	0xD5: "FRONIUS IG Plus 50",
	0xD4: "FRONIUS IG Plus 70",
	0xD3: "FRONIUS IG Plus 100",
	0xD2: "FRONIUS IG Plus 120",
	0xD1: "FRONIUS IG Plus 150",
	0xD0: "FRONIUS IG Plus 35",
	0xCF: "FRONIUS IG Plus 30 V-1",
	0xCE: "FRONIUS IG Plus 35 V-1",
	0xCD: "FRONIUS IG Plus 50 V-1",
	0xCC: "FRONIUS IG Plus 70 V-1",
	0xCB: "FRONIUS IG Plus 70 V-2",
	0xCA: "FRONIUS IG Plus 100 V-1",
	0xC9: "FRONIUS IG Plus 100 V-2",
	0xC8: "FRONIUS IG Plus 120 V-3",
	0xC7: "FRONIUS IG Plus 150 V-3",
	0xC6: "FRONIUS IG TL 3.0",
	0xC5: "FRONIUS IG TL 4.0",
	0xC4: "FRONIUS IG TL 5.0",
	0xC3: "FRONIUS IG TL 3.6",
	0xC2: "FRONIUS IG TL 4.6",
	0xBF: "FRONIUS Galvo 2.0-1",
	0xBE: "FRONIUS Galvo 3.0-1",
	0xBD: "FRONIUS Galvo 1.5-1",
	0xBC: "FRONIUS Galvo 2.5-1",
	0xBB: "FRONIUS Galvo 3.1-1",
}

// froniusCodes is the reverse of froniusModels, keyed by upper-case name.
var froniusCodes = func() map[string]byte {
	m := make(map[string]byte, len(froniusModels))
	for code, name := range froniusModels {
		m[strings.ToUpper(name)] = code
	}

	return m
}()

// FroniusModelName returns the model name of a Fronius device type code.
// Unknown codes render as "Unknown(0xNN)" with ok=false.
func FroniusModelName(code byte) (name string, ok bool) {
	if name, ok := froniusModels[code]; ok {
		return name, true
	}

	return fmt.Sprintf("Unknown(0x%02X)", code), false
}

// FroniusModelCode is the inverse of FroniusModelName; the match ignores case.
func FroniusModelCode(name string) (byte, bool) {
	code, ok := froniusCodes[strings.ToUpper(strings.TrimSpace(name))]
	return code, ok
}

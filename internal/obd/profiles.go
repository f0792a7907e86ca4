package obd

import (
	"fmt"
	"strings"

	"github.com/rakshitbharat/gobd-ble/internal/ble"
)

// Profile describes one known ELM327 BLE clone: the service that emulates a
// serial port and the characteristics used for writing commands and
// receiving notifications. WriteMode is a fixed property of the profile —
// it is never probed at runtime.
type Profile struct {
	Name       string
	Service    string
	WriteChar  string
	NotifyChar string
	WriteMode  ble.WriteMode
}

// knownProfiles is ordered by real-world prevalence. Negotiation is strictly
// first-match, so the order here is a priority, not a style choice.
var knownProfiles = []Profile{
	{
		Name:       "vgate-fff0",
		Service:    "FFF0",
		WriteChar:  "FFF2",
		NotifyChar: "FFF1",
		WriteMode:  ble.WriteWithoutResponse,
	},
	{
		Name:       "hm10-ffe0",
		Service:    "FFE0",
		WriteChar:  "FFE1",
		NotifyChar: "FFE1", // single characteristic carries both directions
		WriteMode:  ble.WriteWithoutResponse,
	},
	{
		Name:       "obdble-18f0",
		Service:    "18F0",
		WriteChar:  "2AF1",
		NotifyChar: "2AF0",
		WriteMode:  ble.WriteWithoutResponse,
	},
	{
		Name:       "zentri-spp",
		Service:    "E7810A71-73AE-499D-8C15-FAA9AEF0C3F2",
		WriteChar:  "BEF8D6C9-9C21-4C9E-B632-BD58C1009F9F",
		NotifyChar: "BEF8D6C9-9C21-4C9E-B632-BD58C1009F9F",
		WriteMode:  ble.WriteWithResponse,
	},
}

// KnownProfiles returns a copy of the built-in profile table.
func KnownProfiles() []Profile {
	out := make([]Profile, len(knownProfiles))
	copy(out, knownProfiles)
	return out
}

// DeviceConfig is the active service/characteristic selection for a
// connected adapter. It is set once per successful negotiation and cleared
// on disconnect; the command layer only ever reads it.
type DeviceConfig struct {
	ProfileName string
	Service     string
	WriteChar   string
	NotifyChar  string
	WriteMode   ble.WriteMode
}

// bluetoothBaseSuffix completes a 16-bit UUID against the Bluetooth base UUID.
const bluetoothBaseSuffix = "-0000-1000-8000-00805F9B34FB"

// NormalizeUUID upper-cases a UUID and expands 16-bit and 32-bit short forms
// to the full 128-bit representation. Adapters report UUID casing
// inconsistently, so every comparison in this package goes through here.
func NormalizeUUID(u string) string {
	u = strings.ToUpper(strings.TrimSpace(u))
	switch len(u) {
	case 4:
		return "0000" + u + bluetoothBaseSuffix
	case 8:
		return u + bluetoothBaseSuffix
	default:
		return u
	}
}

// Negotiate selects the first profile whose service and characteristics are
// all present in the discovered sets. discovered maps service UUID to the
// characteristic UUIDs of that service, as reported by the peripheral; extra
// profiles (from configuration) are tried after the built-in table.
func Negotiate(discovered map[string][]string, extra []Profile) (DeviceConfig, error) {
	chars := make(map[string]map[string]bool, len(discovered))
	for svc, cs := range discovered {
		set := make(map[string]bool, len(cs))
		for _, c := range cs {
			set[NormalizeUUID(c)] = true
		}
		chars[NormalizeUUID(svc)] = set
	}

	for _, p := range append(KnownProfiles(), extra...) {
		svcChars, ok := chars[NormalizeUUID(p.Service)]
		if !ok {
			continue
		}
		if !svcChars[NormalizeUUID(p.WriteChar)] || !svcChars[NormalizeUUID(p.NotifyChar)] {
			continue
		}
		return DeviceConfig{
			ProfileName: p.Name,
			Service:     NormalizeUUID(p.Service),
			WriteChar:   NormalizeUUID(p.WriteChar),
			NotifyChar:  NormalizeUUID(p.NotifyChar),
			WriteMode:   p.WriteMode,
		}, nil
	}

	return DeviceConfig{}, fmt.Errorf("%w: tried %d profiles against %d services",
		ErrNoCompatibleProfile, len(knownProfiles)+len(extra), len(discovered))
}

package ortc

import (
	"encoding/hex"
	"strings"
)

type h264Profile int

const (
	h264ProfileUnknown h264Profile = iota
	h264ProfileConstrainedBaseline
	h264ProfileBaseline
	h264ProfileMain
	h264ProfileConstrainedHigh
	h264ProfileHigh
	h264ProfilePredictiveHigh444
)

const defaultH264ProfileLevelID = "42e01f"

// profile_iop patterns from RFC 6184 table 5, x marks a don't care bit
var h264ProfilePatterns = []struct {
	profileIdc byte
	iopPattern string
	profile    h264Profile
}{
	{0x42, "x1xx0000", h264ProfileConstrainedBaseline},
	{0x4D, "1xxx0000", h264ProfileConstrainedBaseline},
	{0x58, "11xx0000", h264ProfileConstrainedBaseline},
	{0x42, "x0xx0000", h264ProfileBaseline},
	{0x58, "10xx0000", h264ProfileBaseline},
	{0x4D, "0x0x0000", h264ProfileMain},
	{0x64, "00000000", h264ProfileHigh},
	{0x64, "00001100", h264ProfileConstrainedHigh},
	{0xF4, "x0000000", h264ProfilePredictiveHigh444},
}

func matchesIOPPattern(iop byte, pattern string) bool {
	for i := range 8 {
		bit := (iop >> (7 - i)) & 1
		switch pattern[i] {
		case '1':
			if bit != 1 {
				return false
			}
		case '0':
			if bit != 0 {
				return false
			}
		}
	}

	return true
}

func parseH264Profile(profileLevelID string) h264Profile {
	if profileLevelID == "" {
		profileLevelID = defaultH264ProfileLevelID
	}

	raw, err := hex.DecodeString(strings.ToLower(profileLevelID))
	if err != nil || len(raw) != 3 {
		return h264ProfileUnknown
	}

	for _, pattern := range h264ProfilePatterns {
		if pattern.profileIdc == raw[0] && matchesIOPPattern(raw[1], pattern.iopPattern) {
			return pattern.profile
		}
	}

	return h264ProfileUnknown
}

func isSameH264Profile(a, b Parameters) bool {
	profileA := parseH264Profile(a.String("profile-level-id"))
	profileB := parseH264Profile(b.String("profile-level-id"))

	return profileA != h264ProfileUnknown && profileA == profileB
}

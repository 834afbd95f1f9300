package utils

import (
	"strings"

	"iot-tier-pipeline/src/types"
)

// DeriveKey replaces the first occurrence of the source tier segment with
// the destination segment, leaving the rest of the key untouched.
func DeriveKey(key, fromTier, toTier string) string {
	return strings.Replace(key, fromTier, toTier, 1)
}

func HasTabularExtension(key string) bool {
	return strings.HasSuffix(key, types.TabularExtension)
}

// IsBronzeKey reports whether key carries the bronze segment anywhere; the
// classifier substitutes its first occurrence.
func IsBronzeKey(key string) bool {
	return strings.Contains(key, types.TierBronze)
}

func IsSilverKey(key string) bool {
	return strings.HasPrefix(key, types.TierSilver)
}

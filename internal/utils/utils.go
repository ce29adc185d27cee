// Package utils holds small CLI helpers.
package utils

import (
	"strconv"
	"strings"

	"github.com/apex/log"
)

// ConvertStrToInt parses a decimal or hex (0x-prefixed or containing hex
// digits) integer string.
func ConvertStrToInt(intStr string) (uint64, error) {
	intStr = strings.ToLower(intStr)

	if strings.ContainsAny(intStr, "xabcdef") {
		intStr = strings.Replace(intStr, "0x", "", -1)
		intStr = strings.Replace(intStr, "x", "", -1)
		if out, err := strconv.ParseUint(intStr, 16, 64); err == nil {
			return out, err
		}
		log.Warn("assuming given integer is in decimal")
	}
	return strconv.ParseUint(intStr, 10, 64)
}

package models

import "strconv"

// ParseSetCount interprets a coach-authored target set count ("4", "3-4",
// "4x"). The leading integer wins; anything unparseable clamps to 0.
func ParseSetCount(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

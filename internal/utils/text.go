package utils

import "strings"

func WordCount(text string) int {
	return len(strings.Fields(text))
}

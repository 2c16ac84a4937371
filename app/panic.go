package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ecuos/hal"
	"ecuos/kernel"
)

// monitorColumns is the width status lines are wrapped to.
const monitorColumns = 78

func panicReporter(log hal.Logger) func(kernel.PanicInfo) {
	return func(info kernel.PanicInfo) {
		for _, line := range panicLines(info, 0) {
			log.WriteLineString(line)
		}
	}
}

// panicLines formats info, wrapping every line to cols runes when cols > 0.
func panicLines(info kernel.PanicInfo, cols int) []string {
	lines := []string{
		fmt.Sprintf("ecuos panic: core=%d status=%s", info.Core, info.Status),
		fmt.Sprintf("last error: %s %s params=%d,%d",
			info.Info.Service, info.Info.Status, info.Info.Params[0], info.Info.Params[1]),
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(info.Stack), "\n") {
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}
	if cols <= 0 {
		return lines
	}

	var out []string
	for _, line := range lines {
		for len(line) > 0 {
			chunk, rest := takeRunes(line, cols)
			out = append(out, chunk)
			line = strings.TrimLeft(rest, " \t")
		}
	}
	return out
}

func takeRunes(s string, n int) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	if len(s) <= n {
		return s, ""
	}
	var i, count int
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		i += size
		count++
	}
	if i >= len(s) {
		return s, ""
	}
	return s[:i], s[i:]
}

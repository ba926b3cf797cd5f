package sandbox

import (
	"fmt"
	"regexp"
	"strings"
)

// builtinDenyPatterns block destructive shell commands
var builtinDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`),            // rm -r, rm -rf, rm -fr
	regexp.MustCompile(`(?i)\bdel\s+/[fq]\b`),                // del /f, del /q
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),                 // rmdir /s
	regexp.MustCompile(`(?i)(?:^|[;&|]\s*)format\b`),         // format
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),            // disk ops
	regexp.MustCompile(`(?i)\bdd\s+if=`),                     // dd
	regexp.MustCompile(`(?i)>\s*/dev/sd`),                    // write to disk
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`), // power control
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),                // fork bomb
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidDenyPattern, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// guard reports the first deny pattern command matches
func guard(command string, extra []*regexp.Regexp) error {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return ErrEmptyCommand
	}

	for _, patterns := range [][]*regexp.Regexp{builtinDenyPatterns, extra} {
		for _, p := range patterns {
			if p.MatchString(trimmed) {
				return fmt.Errorf("%w: dangerous pattern detected", ErrCommandBlocked)
			}
		}
	}
	return nil
}

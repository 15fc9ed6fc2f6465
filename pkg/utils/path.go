package utils

import (
	"fmt"
	"strings"
)

// ValidateSegment checks that a namespace segment is safe to use as a
// single path component. Layout segments turn into directory names on
// filesystems and prefixes on object stores, so separators and relative
// components are rejected rather than interpreted.
//
// Empty segments are allowed: layouts simply omit them.
//
// Example usage:
//
//	if err := utils.ValidateSegment(opts.Instance); err != nil {
//		return fmt.Errorf("invalid drop target: %w", err)
//	}
func ValidateSegment(segment string) error {
	if segment == "" {
		return nil
	}

	if segment == "." || segment == ".." {
		return fmt.Errorf("segment is a relative path component: %s", segment)
	}

	if strings.ContainsAny(segment, `/\`) {
		return fmt.Errorf("segment contains a path separator: %s", segment)
	}

	for _, r := range segment {
		if r < 0x20 {
			return fmt.Errorf("segment contains a control character: %q", segment)
		}
	}

	return nil
}

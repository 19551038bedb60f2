package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCount parses the optional count argument of /latest. An empty
// argument yields def; values outside [1, maxN] are rejected.
func ParseCount(args string, def, maxN int) (int, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("invalid count %q", fields[0])
	}
	if n < 1 || n > maxN {
		return 0, fmt.Errorf("count must be between 1 and %d", maxN)
	}
	return n, nil
}

// ParseCallback splits callback data of the form action[:arg].
func ParseCallback(data string) (action, arg string) {
	action, arg, _ = strings.Cut(strings.TrimSpace(data), ":")
	return action, arg
}

package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("an ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseVIPArgs splits a /vip command into its subcommand and remainder.
func ParseVIPArgs(args string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	sub := parts[0]
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	switch sub {
	case "add", "remove", "list":
		return sub, rest, nil
	}
	return "", "", fmt.Errorf("usage: /vip add <user_id> [name] | /vip remove <user_id> | /vip list")
}

// ParseVIPAddArgs extracts the sender ID and optional display name.
func ParseVIPAddArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if parts[0] == "" {
		return 0, "", fmt.Errorf("usage: /vip add <user_id> [name]")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid user ID %q", parts[0])
	}
	name := ""
	if len(parts) == 2 {
		name = strings.TrimSpace(parts[1])
	}
	return id, name, nil
}

// ParseIntervalArg extracts the digest cadence in hours.
func ParseIntervalArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("usage: /interval <hours>")
	}
	hours, err := strconv.Atoi(strings.Fields(s)[0])
	if err != nil || hours < 1 || hours > 168 {
		return 0, fmt.Errorf("interval must be between 1 and 168 hours")
	}
	return hours, nil
}

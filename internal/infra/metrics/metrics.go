package metrics

import "strings"

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

//go:build windows

package opener

import "strings"

const launcher = "cmd"

// cmd treats & as a command separator
func launcherArgs(url string) []string {
	return []string{"/c", "start", strings.ReplaceAll(url, "&", "^&")}
}

//go:build darwin

package opener

const launcher = "open"

func launcherArgs(url string) []string {
	return []string{url}
}

//go:build !windows && !darwin

package opener

const launcher = "xdg-open"

func launcherArgs(url string) []string {
	return []string{url}
}

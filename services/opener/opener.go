// Package opener holds the desktop side effects of a notification: opening
// a listing in the default browser and ringing the terminal bell.
package opener

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Browser opens URLs with the platform launcher command
type Browser struct {
	name string
	args func(url string) []string
}

// NewBrowser returns the launcher for the running platform
func NewBrowser() *Browser {
	return &Browser{name: launcher, args: launcherArgs}
}

// Open starts the launcher and returns without waiting for it to exit
func (b *Browser) Open(url string) error {
	cmd := exec.Command(b.name, b.args(url)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", b.name, err)
	}

	// reap the launcher
	go cmd.Wait()
	return nil
}

// Bell writes the BEL control character
type Bell struct {
	Out io.Writer
}

// NewBell rings on stdout
func NewBell() *Bell {
	return &Bell{Out: os.Stdout}
}

// Beep emits one audible alert
func (b *Bell) Beep() error {
	_, err := io.WriteString(b.Out, "\a")
	return err
}

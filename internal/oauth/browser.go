package oauth

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenBrowser launches the system default browser at url and returns as
// soon as the launcher process has started, without waiting for the
// browser itself.
func OpenBrowser(url string) error {
	var launcher []string
	switch runtime.GOOS {
	case "linux":
		launcher = []string{"xdg-open", url}
	case "darwin":
		launcher = []string{"open", url}
	case "windows":
		launcher = []string{"cmd", "/c", "start", url}
	default:
		return fmt.Errorf("no browser launcher for platform %s", runtime.GOOS)
	}

	if err := exec.Command(launcher[0], launcher[1:]...).Start(); err != nil {
		return fmt.Errorf("launching browser: %w", err)
	}
	return nil
}

package browser

import (
	"os"
	"runtime"
)

// FindChrome on the FS, returns the binary and a directory for temporary profiles
func FindChrome() (string, string) {
	switch runtime.GOOS {
	case "windows":
		return "C:\\Program Files (x86)\\Google\\Chrome\\Application\\chrome.exe", "C:\\Temp\\driverk\\"
	case "darwin":
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", "/tmp/driverk/"
	case "linux":
		for _, candidate := range []string{"/usr/bin/chromium-browser", "/usr/bin/chromium", "/usr/bin/google-chrome"} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, "/tmp/driverk/"
			}
		}
		return "/usr/bin/chromium-browser", "/tmp/driverk/"
	}
	return "", "tmp"
}

// FindKill based on OS
func FindKill(browser string) []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"taskkill", "/IM", browser + ".exe"}
	case "darwin", "linux":
		return []string{"killall", browser}
	}
	return []string{""}
}

package browser

import (
	"io/ioutil"
	"net"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LeaserService hands out debugger ports of running browsers
type LeaserService interface {
	Acquire() (string, error) // returns port number
	Return(port string) error
	Cleanup() (string, error)
	Count() (string, error)
}

var startupFlags = []string{
	"--enable-automation",
	"--test-type",
	"--disable-client-side-phishing-detection",
	"--disable-component-update",
	"--disable-infobars",
	"--disable-domain-reliability",
	"--disable-background-networking",
	"--disable-sync",
	"--disable-default-apps",
	"--disable-popup-blocking",
	"--disable-extensions",
	"--disable-features=TranslateUI",
	"--disable-gpu",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--no-first-run",
	"--window-size=1024,768",
	"--password-store=basic",
}

func randPort() string {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		log.Warn().Err(err).Msg("unable to get port using default 9022")
		return "9022"
	}
	_, port, _ := net.SplitHostPort(l.Addr().String())
	l.Close()
	return port
}

func randProfile(tmp string) (string, error) {
	if err := os.MkdirAll(tmp, 0700); err != nil {
		return "", err
	}
	profile, err := ioutil.TempDir(tmp, "driverk")
	if err != nil {
		return "", err
	}
	if profile == "" {
		log.Fatal().Msg("profile returned empty which could delete system files on termination")
	}
	return profile, nil
}

// RemoveTmpContents that the browser created
func RemoveTmpContents(tmp string) error {
	if tmp == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(tmp, "driverk*"))
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.RemoveAll(file); err != nil {
			return err
		}
	}
	return nil
}

// KillOldProcesses of chrome, only safe on hosts dedicated to automation
func KillOldProcesses() error {
	for _, name := range []string{"google-chrome", "chrome", "chromium"} {
		killer := FindKill(name)
		cmd := exec.Command(killer[0], killer[1:]...)
		output, err := cmd.CombinedOutput()
		if err != nil {
			log.Debug().Msgf("%s %s:%s", name, err.Error(), string(output))
		}
	}
	return nil
}

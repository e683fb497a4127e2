package auth

import (
	"fmt"
	"net/url"
	"os/exec"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"
)

const (
	browserOpenAttempts = 3
	browserRetryDelay   = 500 * time.Millisecond
	profileDirectoryArg = "--profile-directory="
)

// BrowserOptions selects the browser used for the consent page
type BrowserOptions struct {
	// ChromePath is an explicit Chrome executable; empty uses the system default browser
	ChromePath string
	// ChromeProfile is the profile directory name, e.g. "Profile 2"
	ChromeProfile string
}

// BrowserLauncher opens a URL for the user without waiting for the browser to exit
type BrowserLauncher interface {
	Open(rawURL string, options BrowserOptions) error
}

// SystemBrowser launches Chrome when a path is given and falls back to the
// platform default browser otherwise or on failure.
type SystemBrowser struct {
	logger       *zap.Logger
	openURL      func(string) error
	startProcess func(name string, args ...string) error
	retryDelay   time.Duration
}

// NewSystemBrowser creates the production launcher
func NewSystemBrowser(logger *zap.Logger) *SystemBrowser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemBrowser{
		logger:       logger,
		openURL:      browser.OpenURL,
		startProcess: startDetached,
		retryDelay:   browserRetryDelay,
	}
}

// Open launches the browser. Only http and https URLs are accepted.
func (b *SystemBrowser) Open(rawURL string, options BrowserOptions) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("refusing to open non-http url %q", rawURL)
	}

	if options.ChromePath != "" {
		args := make([]string, 0, 2)
		if options.ChromeProfile != "" {
			args = append(args, profileDirectoryArg+options.ChromeProfile)
		}
		args = append(args, rawURL)

		err := b.startProcess(options.ChromePath, args...)
		if err == nil {
			b.logger.Info("opened chrome",
				zap.String("chrome_path", options.ChromePath),
				zap.String("chrome_profile", options.ChromeProfile))
			return nil
		}
		b.logger.Warn("failed to launch chrome, falling back to default browser",
			zap.String("chrome_path", options.ChromePath), zap.Error(err))
	}

	var openErr error
	for i := 0; i < browserOpenAttempts; i++ {
		openErr = b.openURL(rawURL)
		if openErr == nil {
			b.logger.Info("browser has been opened automatically")
			return nil
		}
		time.Sleep(b.retryDelay)
	}
	return fmt.Errorf("failed to open browser: %w", openErr)
}

// startDetached starts the process and reaps it in the background
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

const (
	chromeLocalStateFile = "Local State"
	chromeInfoCachePath  = "profile.info_cache"
	chromeUserNameField  = "user_name"
)

// DefaultChromeUserDataDir returns Chrome's user data directory for the current OS
func DefaultChromeUserDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Google", "Chrome", "User Data")
		}
		return filepath.Join(home, "AppData", "Local", "Google", "Chrome", "User Data")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome")
	default:
		return filepath.Join(home, ".config", "google-chrome")
	}
}

// FindChromeProfile returns the profile directory (e.g. "Profile 2") whose
// signed-in user name matches account case-insensitively.
func FindChromeProfile(userDataDir, account string) (string, error) {
	localStatePath := filepath.Join(userDataDir, chromeLocalStateFile)
	data, err := os.ReadFile(localStatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.New(apperrors.FileNotFound, "chrome local state not found").WithDetails(localStatePath)
		}
		return "", apperrors.Wrap(err, apperrors.FileNotFound, "failed to read chrome local state")
	}
	if !gjson.ValidBytes(data) {
		return "", apperrors.New(apperrors.ConfigurationError, "chrome local state is not valid JSON").WithDetails(localStatePath)
	}

	var profileDir string
	gjson.GetBytes(data, chromeInfoCachePath).ForEach(func(key, value gjson.Result) bool {
		if strings.EqualFold(value.Get(chromeUserNameField).String(), account) {
			profileDir = key.String()
			return false
		}
		return true
	})

	if profileDir == "" {
		return "", apperrors.Newf(apperrors.AccountNotFound, "no chrome profile signed in as %s", account)
	}
	return profileDir, nil
}

// InferChromeProfile fills req.ChromeProfile with the profile signed in as
// req.Account. It is a no-op unless a Chrome path is set and no profile was given.
func InferChromeProfile(req *Request, userDataDir string) error {
	if req.ChromePath == "" || req.ChromeProfile != "" || req.Account == "" {
		return nil
	}
	if userDataDir == "" {
		userDataDir = DefaultChromeUserDataDir()
	}

	profile, err := FindChromeProfile(userDataDir, req.Account)
	if err != nil {
		return err
	}
	req.ChromeProfile = profile
	return nil
}

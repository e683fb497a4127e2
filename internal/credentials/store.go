// Package credentials merges freshly issued tokens into the local credentials
// file, a JSON object keyed by account identifier.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
	"github.com/naotama2002/platform-auth-refresh/internal/filelock"
)

const (
	accessTokenField  = "accessToken"
	refreshTokenField = "refreshToken"
	jsonIndent        = "  "

	// DefaultLockTimeout bounds the wait for a concurrent updater
	DefaultLockTimeout = 5 * time.Second
)

// Tokens is the pair written into an account entry
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Complete reports whether both tokens are present
func (t Tokens) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}

// Result describes the entry that was written
type Result struct {
	// Key is the account key as stored in the file, which keeps its original casing on update
	Key   string
	Added bool
}

// Updater edits the credentials file in place, keeping key order and every
// field it does not own.
type Updater struct {
	logger      *zap.Logger
	lockTimeout time.Duration
}

// NewUpdater creates an Updater. logger may be nil.
func NewUpdater(logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{
		logger:      logger,
		lockTimeout: DefaultLockTimeout,
	}
}

// Update stores tokens under the entry matching account case-insensitively.
// A missing account is added under the exact account string only when
// addIfMissing is set. Incomplete tokens are rejected without writing.
func (u *Updater) Update(ctx context.Context, path, account string, tokens Tokens, addIfMissing bool) (*Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.FileNotFound, "credentials file not found").WithDetails(path)
		}
		return nil, apperrors.Wrap(err, apperrors.FileNotFound, "failed to stat credentials file")
	}

	var result *Result
	lock := filelock.New(path)
	err = lock.WithLock(ctx, u.lockTimeout, func() error {
		var updateErr error
		result, updateErr = u.update(path, info.Mode().Perm(), account, tokens, addIfMissing)
		return updateErr
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("credentials updated",
		zap.String("path", path),
		zap.String("account", result.Key),
		zap.Bool("added", result.Added))
	return result, nil
}

func (u *Updater) update(path string, perm os.FileMode, account string, tokens Tokens, addIfMissing bool) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.FileNotFound, "failed to read credentials file")
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, apperrors.New(apperrors.ConfigurationError, "credentials file is not a JSON object").WithDetails(path)
	}
	root := gjson.ParseBytes(data)

	matchedKey, found := findAccount(root, account)
	if !found {
		if !addIfMissing {
			return nil, apperrors.Newf(apperrors.AccountNotFound, "account %q not found in credentials file", account)
		}
		matchedKey = account
		u.logger.Info("account not found, adding it as a new account", zap.String("account", account))
	}

	if !tokens.Complete() {
		return nil, apperrors.New(apperrors.IncompleteTokenData, "incomplete token data received").
			WithDetails("both access and refresh tokens are required")
	}

	output, err := rewrite(root, matchedKey, !found, tokens)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, output, perm); err != nil {
		return nil, apperrors.Wrap(err, apperrors.FileNotFound, "failed to write credentials file")
	}

	return &Result{Key: matchedKey, Added: !found}, nil
}

// findAccount returns the first top-level key equal to account ignoring case
func findAccount(root gjson.Result, account string) (string, bool) {
	var matched string
	var found bool
	root.ForEach(func(key, _ gjson.Result) bool {
		if strings.EqualFold(key.String(), account) {
			matched = key.String()
			found = true
			return false
		}
		return true
	})
	return matched, found
}

// rewrite reassembles the top-level object, replacing only the matched entry,
// and re-indents the whole document with two spaces.
func rewrite(root gjson.Result, key string, add bool, tokens Tokens) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')
	first := true
	var setErr error

	root.ForEach(func(k, value gjson.Result) bool {
		if !first {
			compact.WriteByte(',')
		}
		first = false
		compact.WriteString(k.Raw)
		compact.WriteByte(':')

		if !add && k.String() == key {
			entry, err := setTokens(value, tokens)
			if err != nil {
				setErr = err
				return false
			}
			compact.Write(entry)
			return true
		}
		compact.WriteString(value.Raw)
		return true
	})
	if setErr != nil {
		return nil, setErr
	}

	if add {
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "failed to encode account key")
		}
		entry, err := setTokens(gjson.Result{}, tokens)
		if err != nil {
			return nil, err
		}
		if !first {
			compact.WriteByte(',')
		}
		compact.Write(encodedKey)
		compact.WriteByte(':')
		compact.Write(entry)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", jsonIndent); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigurationError, "failed to format credentials file")
	}
	return out.Bytes(), nil
}

// setTokens writes both token fields into entry, starting from an empty
// object when entry is missing or not an object.
func setTokens(entry gjson.Result, tokens Tokens) ([]byte, error) {
	raw := []byte("{}")
	if entry.IsObject() {
		raw = []byte(entry.Raw)
	}

	raw, err := sjson.SetBytes(raw, accessTokenField, tokens.AccessToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "failed to set access token")
	}
	raw, err = sjson.SetBytes(raw, refreshTokenField, tokens.RefreshToken)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidArgument, "failed to set refresh token")
	}
	return raw, nil
}

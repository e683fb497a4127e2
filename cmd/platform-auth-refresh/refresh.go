package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/naotama2002/platform-auth-refresh/internal/auth"
	"github.com/naotama2002/platform-auth-refresh/internal/credentials"
	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
)

type tokenRefresher interface {
	RefreshTokens(ctx context.Context, req auth.Request) (*auth.TokenResult, error)
}

type credentialsUpdater interface {
	Update(ctx context.Context, path, account string, tokens credentials.Tokens, addIfMissing bool) (*credentials.Result, error)
}

type refreshOptions struct {
	request           auth.Request
	credsFilePath     string
	addNewAccount     bool
	chromeUserDataDir string
}

func refreshOptionsFromViper(v *viper.Viper) (refreshOptions, error) {
	platform, err := auth.ParsePlatform(v.GetString(flagPlatform))
	if err != nil {
		return refreshOptions{}, err
	}

	options := refreshOptions{
		request: auth.Request{
			Platform:      platform,
			Account:       v.GetString(flagAccount),
			Timeout:       time.Duration(v.GetInt(flagTimeout)) * time.Second,
			ChromePath:    v.GetString(flagChrome),
			ChromeProfile: v.GetString(flagChromeProfile),
		},
		credsFilePath:     v.GetString(flagCredsFilePath),
		addNewAccount:     v.GetBool(flagAddNewAccount),
		chromeUserDataDir: v.GetString(flagChromeUserDataDir),
	}

	switch {
	case options.request.Account == "":
		return refreshOptions{}, apperrors.NewInvalidArgument("--account is required")
	case options.credsFilePath == "":
		return refreshOptions{}, apperrors.NewInvalidArgument("--creds-file-path is required")
	}
	return options, nil
}

// runRefresh infers the Chrome profile, runs the browser flow, prints the
// masked summary and merges the tokens into the credentials file.
func runRefresh(ctx context.Context, logger *zap.Logger, refresher tokenRefresher, updater credentialsUpdater, options refreshOptions, out io.Writer) error {
	req := options.request
	if err := auth.InferChromeProfile(&req, options.chromeUserDataDir); err != nil {
		return err
	}
	if req.ChromeProfile != "" && options.request.ChromeProfile == "" {
		logger.Info("inferred chrome profile", zap.String("chrome_profile", req.ChromeProfile))
	}

	tokens, err := refresher.RefreshTokens(ctx, req)
	if err != nil {
		return err
	}
	printSummary(out, req, tokens)

	result, err := updater.Update(ctx, options.credsFilePath, req.Account,
		credentials.Tokens{AccessToken: tokens.AccessToken, RefreshToken: tokens.RefreshToken},
		options.addNewAccount)
	if err != nil {
		return err
	}

	action := "updated"
	if result.Added {
		action = "added"
	}
	fmt.Fprintf(out, "Credentials %s for %s in %s\n", action, result.Key, options.credsFilePath)
	return nil
}

func printSummary(out io.Writer, req auth.Request, tokens *auth.TokenResult) {
	fmt.Fprintf(out, "%s tokens obtained for %s\n", req.Platform, req.Account)
	fmt.Fprintf(out, "  access_token:  %s\n", auth.MaskToken(tokens.AccessToken, 20, 10))
	fmt.Fprintf(out, "  refresh_token: %s\n", auth.MaskToken(tokens.RefreshToken, 10, 10))
	if tokens.ExpiresIn > 0 {
		fmt.Fprintf(out, "  expires_in:    %d seconds\n", tokens.ExpiresIn)
	}
	if tokens.OpenID != "" {
		fmt.Fprintf(out, "  open_id:       %s\n", tokens.OpenID)
	}
}

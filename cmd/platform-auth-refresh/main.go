package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/naotama2002/platform-auth-refresh/internal/auth"
	"github.com/naotama2002/platform-auth-refresh/internal/credentials"
	apperrors "github.com/naotama2002/platform-auth-refresh/internal/errors"
	"github.com/naotama2002/platform-auth-refresh/internal/mcpserver"
	"github.com/naotama2002/platform-auth-refresh/internal/utils"
)

const (
	commandUse              = "platform-auth-refresh"
	commandShortDescription = "Authorize a YouTube or TikTok account in the browser and store the new tokens"
	serveMCPUse             = "serve-mcp"
	serveMCPDescription     = "Serve the refresh_tokens tool over MCP stdio"
	envPrefix               = "PLATFORM_AUTH"

	flagPlatform          = "platform"
	flagAccount           = "account"
	flagCredsFilePath     = "creds-file-path"
	flagChrome            = "chrome"
	flagChromeProfile     = "chrome-profile"
	flagChromeUserDataDir = "chrome-user-data-dir"
	flagTimeout           = "timeout"
	flagAddNewAccount     = "add-new-account"
	flagDebug             = "debug"
	flagConfig            = "config"

	keyCallbackHost       = "callback_host"
	keyRedirectHost       = "redirect_host"
	keyCallbackPort       = "callback_port"
	keyCallbackPath       = "callback_path"
	keyShutdownGrace      = "shutdown_grace"
	keyHTTPTimeout        = "http_timeout"
	keyYouTube            = "youtube"
	keyTikTok             = "tiktok"
	keyTikTokClientKey    = "tiktok.client_key"
	defaultTimeoutSeconds = 120

	errMessageLoggerCreate = "create logger"
	errMessageConfigRead   = "read config file"
	errMessageConfigDecode = "decode configuration"
)

func main() {
	cobra.CheckErr(newRootCommand().Execute())
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	command := &cobra.Command{
		Use:           commandUse,
		Short:         commandShortDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return configureEnvironment(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefreshCommand(cmd, v)
		},
	}

	persistent := command.PersistentFlags()
	persistent.String(flagConfig, "", "Config file (yaml, json or toml) with client credentials")
	persistent.Bool(flagDebug, false, "Enable debug logging")
	persistent.String(flagChromeUserDataDir, "", "Chrome user data directory used to infer the profile")

	flags := command.Flags()
	flags.String(flagPlatform, "", "Platform to refresh tokens for (youtube or tiktok)")
	flags.String(flagAccount, "", "Account email; login hint and key in the credentials file")
	flags.String(flagCredsFilePath, "", "Credentials JSON file to update")
	flags.String(flagChrome, "", "Path to the Chrome executable (e.g. Chrome Beta)")
	flags.String(flagChromeProfile, "", "Chrome profile directory; inferred from the account when omitted")
	flags.Int(flagTimeout, defaultTimeoutSeconds, "Seconds to wait for the OAuth flow; 0 or negative waits forever")
	flags.Bool(flagAddNewAccount, false, "Add the account to the credentials file if it is not found")

	for _, name := range []string{flagConfig, flagDebug, flagChromeUserDataDir} {
		cobra.CheckErr(v.BindPFlag(name, persistent.Lookup(name)))
	}
	for _, name := range []string{flagPlatform, flagAccount, flagCredsFilePath, flagChrome, flagChromeProfile, flagTimeout, flagAddNewAccount} {
		cobra.CheckErr(v.BindPFlag(name, flags.Lookup(name)))
	}

	command.AddCommand(newServeMCPCommand(v))
	return command
}

func newServeMCPCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   serveMCPUse,
		Short: serveMCPDescription,
		RunE: func(*cobra.Command, []string) error {
			logger, err := newLogger(v.GetBool(flagDebug))
			if err != nil {
				return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			config, err := loadAuthConfig(v)
			if err != nil {
				return err
			}
			authorizer := auth.NewAuthorizer(config, logger)
			server := mcpserver.New(authorizer, credentials.NewUpdater(logger), mcpserver.Config{
				DefaultTimeout:    defaultTimeoutSeconds * time.Second,
				ChromeUserDataDir: v.GetString(flagChromeUserDataDir),
			}, logger)
			logger.Info("serving MCP on stdio")
			return server.Serve()
		},
	}
}

func configureEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setConfigDefaults(v, auth.DefaultConfig())

	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return apperrors.Wrap(err, apperrors.ConfigurationError, errMessageConfigRead)
		}
	}
	return nil
}

// setConfigDefaults registers every auth.Config key so that environment
// variables reach Unmarshal even when no config file mentions them
func setConfigDefaults(v *viper.Viper, defaults auth.Config) {
	v.SetDefault(keyCallbackHost, defaults.CallbackHost)
	v.SetDefault(keyRedirectHost, defaults.RedirectHost)
	v.SetDefault(keyCallbackPort, defaults.CallbackPort)
	v.SetDefault(keyCallbackPath, defaults.CallbackPath)
	v.SetDefault(keyShutdownGrace, defaults.ShutdownGrace)
	v.SetDefault(keyHTTPTimeout, defaults.HTTPTimeout)
	setProviderDefaults(v, keyYouTube, defaults.YouTube)
	setProviderDefaults(v, keyTikTok, defaults.TikTok)
	v.SetDefault(keyTikTokClientKey, "")
}

func setProviderDefaults(v *viper.Viper, prefix string, defaults auth.ProviderConfig) {
	v.SetDefault(prefix+".client_id", defaults.ClientID)
	v.SetDefault(prefix+".client_secret", defaults.ClientSecret)
	v.SetDefault(prefix+".auth_url", defaults.AuthURL)
	v.SetDefault(prefix+".token_url", defaults.TokenURL)
	v.SetDefault(prefix+".scopes", defaults.Scopes)
}

// loadAuthConfig decodes the merged flags, environment, config file and defaults
func loadAuthConfig(v *viper.Viper) (auth.Config, error) {
	var config auth.Config
	if err := v.Unmarshal(&config); err != nil {
		return auth.Config{}, apperrors.Wrap(err, apperrors.ConfigurationError, errMessageConfigDecode)
	}

	// TikTok names its client id the client key
	if key := v.GetString(keyTikTokClientKey); key != "" {
		config.TikTok.ClientID = key
	}
	return config, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.DisableStacktrace = true
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return config.Build()
}

func runRefreshCommand(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := newLogger(v.GetBool(flagDebug))
	if err != nil {
		return fmt.Errorf("%s: %w", errMessageLoggerCreate, err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	options, err := refreshOptionsFromViper(v)
	if err != nil {
		return err
	}

	ctx, stop := utils.WithShutdownSignals(cmd.Context(), logger)
	defer stop()

	config, err := loadAuthConfig(v)
	if err != nil {
		return err
	}
	authorizer := auth.NewAuthorizer(config, logger)
	return runRefresh(ctx, logger, authorizer, credentials.NewUpdater(logger), options, cmd.OutOrStdout())
}

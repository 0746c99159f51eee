// Package config loads typed configuration from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for struct parsing and
// github.com/joho/godotenv for .env files. Every component of the service
// declares its own struct with `env` tags (commhub.Config, store.PostgresConfig,
// email.Config, ...) and the binary loads each of them:
//
//	if err := config.LoadEnv(*envFile); err != nil {
//		return err
//	}
//	var hubCfg commhub.Config
//	if err := config.Load(&hubCfg); err != nil {
//		return err
//	}
//
// Each type is parsed once per process and cached; ResetCache drops the cache,
// which tests use after changing the environment.
//
// Errors can be matched with errors.Is against ErrParsingConfig,
// ErrInvalidConfigType, ErrNilPointer and ErrLoadingEnvFile.
package config

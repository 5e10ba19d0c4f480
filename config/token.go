package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/openlocalize/resxsync/settings"
)

// TokenEnvVar is the environment variable consulted for the API token.
const TokenEnvVar = "RESXSYNC_TOKEN"

// ResolveToken picks the backend API token. Lookup order:
//
//  1. the --token flag value
//  2. the RESXSYNC_TOKEN environment variable
//  3. a .env file in the project root
//  4. the stored credentials for the backend host
//
// The second return value names the source for logging, or "" when no
// token was found anywhere.
func ResolveToken(flagToken, rootDir, host string) (string, string) {
	if flagToken != "" {
		return flagToken, "flag"
	}
	if tok := os.Getenv(TokenEnvVar); tok != "" {
		return tok, "environment"
	}
	if env, err := godotenv.Read(filepath.Join(rootDir, ".env")); err == nil {
		if tok := env[TokenEnvVar]; tok != "" {
			return tok, ".env file"
		}
	}
	if tok := settings.GetToken(host); tok != "" {
		return tok, "credential store"
	}
	return "", ""
}

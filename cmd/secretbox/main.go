// Command secretbox encrypts a credential for api_secret_file or
// api_key_file. The secret is read from stdin and the password from
// FUTURESBOT_SECRETS_PASSWORD; the sealed JSON is written to -out.
package main

import (
	"bufio"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/alanyoungcy/futuresbot/internal/config"
	"github.com/alanyoungcy/futuresbot/internal/crypto"
)

func main() {
	out := flag.String("out", "", "path of the sealed secret file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if *out == "" {
		logger.Error("-out is required")
		os.Exit(2)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		logger.Error("reading secret from stdin", slog.String("error", err.Error()))
		os.Exit(1)
	}

	blob, err := crypto.Encrypt(strings.TrimSpace(line), os.Getenv(config.SecretsPasswordEnv))
	if err != nil {
		logger.Error("encrypt failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		logger.Error("write failed", slog.String("path", *out), slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("secret sealed", slog.String("path", *out))
}

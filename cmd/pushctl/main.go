// Command pushctl is the operator tool for the push subsystem: it generates
// VAPID key pairs, checks public keys and mints service tokens.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/agendaclin/agendaclin/internal/auth"
	"github.com/agendaclin/agendaclin/internal/config"
	"github.com/agendaclin/agendaclin/pkg/vapidkey"
)

const usage = `usage: pushctl <command> [flags]

commands:
  vapid-keys            generate a VAPID key pair as environment assignments
  check-key <key>       check that a base64url VAPID public key is a P-256 point
  token [flags]         mint a service token (signing key from AUTH_SERVICE_SIGNING_KEY)
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "pushctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "vapid-keys":
		return generateKeys(out)
	case "check-key":
		if len(args) != 2 {
			return fmt.Errorf("%w: check-key takes one key", errUsage)
		}
		return checkKey(args[1], out)
	case "token":
		return issueToken(args[1:], out)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func generateKeys(out io.Writer) error {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	if err := vapidkey.ValidatePublicKey(publicKey); err != nil {
		return fmt.Errorf("generated public key is invalid: %w", err)
	}
	fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
	return nil
}

func checkKey(key string, out io.Writer) error {
	if err := vapidkey.ValidatePublicKey(key); err != nil {
		return err
	}
	raw, err := vapidkey.Decode(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "ok: %d bytes, canonical form %s\n", len(raw), vapidkey.Encode(raw))
	return nil
}

type scopeList []string

func (s *scopeList) String() string { return strings.Join(*s, ",") }

func (s *scopeList) Set(v string) error {
	for _, scope := range strings.Split(v, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			*s = append(*s, scope)
		}
	}
	return nil
}

func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	service := fs.String("service", "", "calling service name (token subject)")
	ttl := fs.Duration("ttl", auth.DefaultTokenExpiry, "token lifetime")
	key := fs.String("key", "", "signing key (default: from configuration)")
	var scopes scopeList
	fs.Var(&scopes, "scope", "granted scope, repeatable or comma separated (default push:send)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *service == "" {
		return fmt.Errorf("%w: -service is required", errUsage)
	}
	if len(scopes) == 0 {
		scopes = scopeList{auth.ScopePushSend}
	}

	tokenCfg, err := tokenConfig(*key)
	if err != nil {
		return err
	}

	token, expiresAt, err := auth.NewTokenService(tokenCfg).Issue(*service, scopes, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	fmt.Fprintf(out, "# expires %s\n", expiresAt.UTC().Format(time.RFC3339))
	return nil
}

func tokenConfig(key string) (auth.TokenConfig, error) {
	defaults := config.Default().Auth
	if key != "" {
		return auth.TokenConfig{SigningKey: key, Issuer: defaults.ServiceIssuer, Audience: defaults.ServiceAudience}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return auth.TokenConfig{}, err
	}
	if cfg.Auth.ServiceSigningKey == "" {
		return auth.TokenConfig{}, errors.New("AUTH_SERVICE_SIGNING_KEY is not set")
	}
	return auth.TokenConfig{
		SigningKey: cfg.Auth.ServiceSigningKey,
		Issuer:     cfg.Auth.ServiceIssuer,
		Audience:   cfg.Auth.ServiceAudience,
	}, nil
}

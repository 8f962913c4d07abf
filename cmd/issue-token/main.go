// issue-token prints a signed API token for an actor.
//
// Usage: go run ./cmd/issue-token -actor 3 -perms inventory,sales -ttl 12h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	webAdapter "phone-resale/internal/adapters/web"
	"phone-resale/internal/config"
	"phone-resale/internal/logging"
)

func main() {
	actor := flag.Int("actor", 0, "actor id (required)")
	perms := flag.String("perms", "inventory,sales,purchasing,repairs", "comma-separated permissions")
	ttl := flag.Duration("ttl", 0, "token lifetime (default JWT_EXPIRY_HOURS)")
	flag.Parse()

	_ = godotenv.Load()
	logger := logging.New("warn")
	cfg, err := config.Load(".env", "", logger)
	if err != nil {
		logger.WithError(err).Fatal("config")
	}
	if *actor <= 0 {
		fmt.Fprintln(os.Stderr, "-actor is required")
		os.Exit(2)
	}
	if cfg.Server.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	if *ttl == 0 {
		*ttl = cfg.Server.JWTExpiry
	}

	var list []string
	for _, p := range strings.Split(*perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	token, err := webAdapter.IssueToken(cfg.Server.JWTSecret, *actor, list, *ttl)
	if err != nil {
		logger.WithError(err).Fatal("sign token")
	}
	fmt.Println(token)
}

// Command kas-token prints a signed access token for an owner id. It reads
// JWT_SECRET and JWT_TTL like the server does.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"kas/internal/auth"
	"kas/internal/cli"
)

func main() {
	cfg := cli.LoadConfig()

	owner := flag.String("owner", "", "owner id to embed in the token (default: a new random id)")
	ttl := flag.Duration("ttl", cfg.JWTTTL, "token lifetime; 0 never expires")
	flag.Parse()

	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	if *owner == "" {
		*owner = uuid.NewString()
		fmt.Fprintf(os.Stderr, "owner: %s\n", *owner)
	}

	token, err := auth.NewJWT(cfg.JWTSecret, *ttl).Issue(*owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

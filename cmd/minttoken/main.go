// Command minttoken prints a bearer token for a user, signed with the shared
// JWT_SECRET. It is a development stand-in for the identity service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ordermesh/ordersvc/internal/auth"
)

func main() {
	_ = godotenv.Load()

	userID := flag.Int64("user", 0, "user id to put in the sub claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	issuer := flag.String("iss", os.Getenv("JWT_ISSUER"), "optional iss claim")
	audience := flag.String("aud", os.Getenv("JWT_AUDIENCE"), "optional aud claim")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(2)
	}

	var opts []auth.Option
	if *issuer != "" {
		opts = append(opts, auth.WithIssuer(*issuer))
	}
	if *audience != "" {
		opts = append(opts, auth.WithAudience(*audience))
	}
	iss, err := auth.NewIssuer([]byte(secret), *ttl, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	token, err := iss.Issue(*userID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println(token)
}

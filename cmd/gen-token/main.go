package main

import (
	"fmt"
	"os"
	"strings"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/config"
)

func main() {
	if len(os.Args) < 3 {
		usage()
	}
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		fail("%v", err)
	}
	tokens, err := auth.NewTokenService(cfg.Auth.Secret, auth.WithTokenTTL(cfg.Auth.TokenTTL), auth.WithIssuer(cfg.Auth.Issuer))
	if err != nil {
		fail("%v", err)
	}

	var token string
	switch os.Args[1] {
	case "platform":
		// platform <operator-id> <email> [roles]
		if len(os.Args) < 4 {
			usage()
		}
		token, _, err = tokens.IssuePlatformToken(os.Args[2], os.Args[3], roles(4, auth.RoleSuperAdmin))
	case "institute":
		// institute <user-id> <email> <institute-id> [roles]
		if len(os.Args) < 5 {
			usage()
		}
		token, _, err = tokens.IssueInstituteToken(os.Args[2], os.Args[3], os.Args[4], roles(5, auth.RoleInstituteAdmin))
	default:
		usage()
	}
	if err != nil {
		fail("issue token: %v", err)
	}
	fmt.Println(token)
}

func roles(idx int, fallback string) []string {
	if len(os.Args) <= idx {
		return []string{fallback}
	}
	return strings.Split(os.Args[idx], ",")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n  %[1]s platform <operator-id> <email> [ROLE,...]\n  %[1]s institute <user-id> <email> <institute-id> [ROLE,...]\n", os.Args[0])
	os.Exit(2)
}

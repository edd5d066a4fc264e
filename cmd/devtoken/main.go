// Command devtoken mints a signed bearer token for local testing. With
// -service it mints a payment collaborator credential instead of a user token.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"archmarket.io/internal/config"
	"archmarket.io/internal/identity"
)

func main() {
	log.SetFlags(0)
	_ = godotenv.Load()
	var (
		secret   = flag.String("secret", os.Getenv("ARCHMARKET_AUTH_SECRET"), "HS256 signing secret")
		issuer   = flag.String("issuer", envOr("ARCHMARKET_AUTH_ISSUER", "archmarket"), "Token issuer")
		userID   = flag.String("user", "", "User id (required)")
		email    = flag.String("email", "", "Email claim")
		role     = flag.String("role", string(identity.RoleBuyer), "ARCHITECT, BUYER or ADMIN")
		entityID = flag.String("entity", "", "Architect or buyer id for the role")
		ttl      = flag.Duration("ttl", config.DefaultTokenTTL(), "Token lifetime (ARCHMARKET_TOKEN_TTL)")
		service  = flag.String("service", "", "Mint a payment service credential for this subject")
	)
	flag.Parse()

	if *service != "" {
		paySecret := os.Getenv("ARCHMARKET_PAYMENT_SECRET")
		if paySecret == "" {
			log.Fatal("missing secret: set ARCHMARKET_PAYMENT_SECRET")
		}
		tok, err := identity.GenerateServiceToken([]byte(paySecret), identity.ServiceTokenRequest{
			Subject: *service,
			Issuer:  envOr("ARCHMARKET_PAYMENT_ISSUER", "archmarket-payments"),
			TTL:     *ttl,
		})
		if err != nil {
			log.Fatalf("devtoken: %v", err)
		}
		fmt.Println(tok)
		return
	}

	if *secret == "" {
		log.Fatal("missing secret: provide via -secret or ARCHMARKET_AUTH_SECRET")
	}
	req := identity.TokenRequest{
		UserID: *userID,
		Email:  *email,
		Role:   identity.Role(*role),
		Issuer: *issuer,
		TTL:    *ttl,
	}
	switch req.Role {
	case identity.RoleArchitect:
		req.ArchitectID = *entityID
	case identity.RoleBuyer:
		req.BuyerID = *entityID
	}
	tok, err := identity.GenerateToken([]byte(*secret), req)
	if err != nil {
		log.Fatalf("devtoken: %v", err)
	}
	fmt.Println(tok)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/catalogsync-backend/pkg/auth"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/enums"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
)

// admin-token prints a bearer token for the admin API:
//
//	go run ./cmd/admin-token -subject ops@example.com -role operator
func main() {
	subject := flag.String("subject", "", "operator identity, stored as the token subject")
	role := flag.String("role", string(enums.AdminRoleViewer), "admin, operator or viewer")
	flag.Parse()

	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "admin-token", Console: true, Output: os.Stderr})
	_ = godotenv.Load()

	grantRole, err := enums.ParseAdminRole(*role)
	if err != nil {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "load config", err)
		os.Exit(1)
	}
	signer, err := auth.NewSigner(cfg.JWT)
	if err != nil {
		logg.Error(ctx, "token signer", err)
		os.Exit(1)
	}

	token, err := signer.Mint(time.Now(), auth.Grant{Subject: *subject, Role: grantRole})
	if err != nil {
		logg.Error(ctx, "mint token", err)
		os.Exit(1)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"subject": *subject, "role": string(grantRole), "ttl": signer.TTL().String()}), "admin token minted")
	fmt.Println(token)
}

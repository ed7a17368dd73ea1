package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/syncserver/internal/buildinfo"
	"github.com/dmitrijs2005/syncserver/internal/flagx"
	"github.com/dmitrijs2005/syncserver/internal/server"
	"github.com/dmitrijs2005/syncserver/internal/server/auth"
	"github.com/dmitrijs2005/syncserver/internal/server/config"
)

// issueTokenFlag returns the account given via -issue-token, if any.
func issueTokenFlag() string {
	var account string
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	fs.StringVar(&account, "issue-token", "", "print an access token for the account and exit")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-issue-token"}))
	return account
}

func main() {

	buildinfo.PrintBuildData(os.Stderr)

	ctx := context.Background()
	cfg := config.LoadConfig()

	if account := issueTokenFlag(); account != "" {
		tok, err := auth.GenerateToken(account, []byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
		if err != nil {
			log.Fatalf("%v", err)
		}
		fmt.Println(tok)
		return
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}

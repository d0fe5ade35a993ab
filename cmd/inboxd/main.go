package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pageinbox/inboxd/internal/daemon"
	"github.com/pageinbox/inboxd/internal/session"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", session.DefaultProfile, "profile name")
	flag.Parse()

	if err := session.ValidateProfile(*profileFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Profile: *profileFlag}),
	)

	app.Run()
}

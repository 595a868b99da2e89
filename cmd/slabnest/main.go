// slabnest nests irregular part outlines onto stock sheets.
//
// Build:
//
//	go build -o slabnest ./cmd/slabnest
//
// Usage:
//
//	slabnest serve -addr :8080 -db ~/.slabnest/jobs.db
//	slabnest nest -parts "parts/**/*.dxf" -width 2440 -height 1220 -out layout.pdf
//	slabnest watch -dir parts -out layout.svg
//	slabnest rpc
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/piwi3910/SlabNest/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

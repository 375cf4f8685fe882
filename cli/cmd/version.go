package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/ardnew/tracepoint/pkg"
)

// Version prints the tpctl version.
type Version struct {
	Verbose bool `help:"Include the Go toolchain and platform." short:"v"`
}

// Run executes the version command.
func (v *Version) Run(ctx context.Context) error {
	line := pkg.Name + " " + strings.TrimSpace(pkg.Version)
	if v.Verbose {
		line += fmt.Sprintf(" (%s %s/%s)", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	}

	_, err := fmt.Fprintln(stdout(ctx), line)

	return err
}

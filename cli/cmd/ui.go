package cmd

import (
	"context"
	"path/filepath"

	"github.com/ardnew/tracepoint/cli/cmd/ui"
	"github.com/ardnew/tracepoint/log"
)

// UI opens an interactive window for browsing and toggling the tracepoints of
// the remote process.
type UI struct {
	Configure bool `help:"Toggle with configure (rebuilding units) instead of enable."`
}

// Run executes the ui command.
func (u *UI) Run(ctx context.Context) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	var history string
	if dir, ok := vars(ctx)[CacheIdentifier]; ok && dir != "" {
		history = filepath.Join(dir, ui.BaseHistory)
	}

	return ui.Run(ctx, remote, ui.Options{
		HistoryPath: history,
		Configure:   u.Configure,
		Logger:      log.Default(),
	})
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sfcmove",
		Short: "Buses, bikes and taxi carpools between SFC and Shonandai",
		Long: `sfcmove shows the next buses between Keio SFC and Shonandai station,
shared-bicycle availability at both ends, and lets you share a taxi with
other students heading the same way.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.AddCommand(
		newBusCmd(a),
		newBikeCmd(a),
		newSuggestCmd(a),
		newPrefsCmd(a),
		newRegisterCmd(a),
		newCarpoolCmd(a),
		newMigrateCmd(a),
	)
	return root
}

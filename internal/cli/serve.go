package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		RunE:  runServe,
		Short: "open the ledger and serve metrics until interrupted",
	}
)

func init() {
	serveCmd.Flags().String("metrics", "", "metrics listen address")
	viper.BindPFlag("metrics.listen", serveCmd.Flags().Lookup("metrics"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := openNode(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)

	go func() {
		if err := node.ListenAndServe(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		node.Stop()
		return err
	case <-waitExit(ctx):
		cancel()
		return node.Stop()
	}
}

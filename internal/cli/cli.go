package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcfw/dagledger/internal/node"
)

var (
	rootCmd = &cobra.Command{
		Use:   "dagledger",
		Short: "block DAG ledger",
	}
)

func Execute() error {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "increase verbosity")
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.PersistentFlags().String("data", "", "storage directory")
	viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("data"))

	regCommands()

	return rootCmd.Execute()
}

func openNode(ctx context.Context) (*node.Node, error) {
	n, err := node.NewNode(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "initing node")
	}

	return n, nil
}

func waitExit(ctx context.Context) <-chan os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	return sigs
}

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcfw/dagledger/internal/utils/logging"
	"github.com/tcfw/dagledger/pkg/tx"
)

var (
	importCmd = &cobra.Command{
		Use:   "import <file>",
		Short: "submit a stream of msgpack encoded blocks",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}

	balanceCmd = &cobra.Command{
		Use:   "balance <address>",
		Short: "print the balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE:  runBalance,
	}

	tipCmd = &cobra.Command{
		Use:   "tip",
		Short: "print the canonical tip and state root",
		RunE:  runTip,
	}

	gcCmd = &cobra.Command{
		Use:   "gc",
		Short: "remove unreachable state trie nodes",
		RunE:  runGC,
	}
)

func init() {
	balanceCmd.Flags().String("root", "", "state root to query instead of the canonical state")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f, err := os.Open(args[0])
	if err != nil {
		return errors.Wrap(err, "opening import file")
	}
	defer f.Close()

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Stop()

	go func() {
		<-waitExit(ctx)
		cancel()
	}()

	stats, err := n.Import(ctx, f)
	if err != nil {
		return err
	}

	logging.Entry().WithFields(logging.Fields{
		"accepted": stats.Accepted,
		"known":    stats.AlreadyKnown,
		"buffered": stats.Buffered,
		"rejected": stats.Rejected,
		"tip":      n.Ledger().CanonicalTip(),
	}).Info("import complete")

	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	addr, err := tx.ParseAddress(args[0])
	if err != nil {
		return err
	}

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Stop()

	l := n.Ledger()
	root := l.StateRoot()

	if r, _ := cmd.Flags().GetString("root"); r != "" {
		root, err = cid.Decode(r)
		if err != nil {
			return errors.Wrap(err, "parsing state root")
		}
	}

	acc, err := l.Account(ctx, addr, root)
	if err != nil {
		return err
	}

	fmt.Printf("%d (nonce %d)\n", acc.Balance, acc.Nonce)

	return nil
}

func runTip(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Stop()

	l := n.Ledger()

	fmt.Printf("tip:   %s\nroot:  %s\norder: %d\ntips:  %d\n", l.CanonicalTip(), l.StateRoot(), len(l.Order()), len(l.Tips()))

	return nil
}

func runGC(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	n, err := openNode(ctx)
	if err != nil {
		return err
	}
	defer n.Stop()

	removed, err := n.Ledger().CollectGarbage(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d nodes\n", removed)

	return nil
}

package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tcfw/dagledger/internal/config"
)

func main() {
	file := flag.String("f", "genesis.yaml", "genesis allocation file")
	now := flag.Bool("now", false, "override createdAt with the current time")
	flag.Parse()

	g, err := config.LoadGenesisFile(*file)
	if err != nil {
		panic(err)
	}

	if *now {
		g.CreatedAt = time.Now().Unix()
	}

	b, err := g.Block()
	if err != nil {
		panic(err)
	}

	hash, err := b.Hash()
	if err != nil {
		panic(err)
	}

	enc, err := g.Encode()
	if err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "Genesis block: %s (%d allocations)\n", hash, len(g.Alloc))
	fmt.Printf("Genesis Config:\n%s\n", enc)
}

package node

import (
	"github.com/sirupsen/logrus"
	"github.com/tcfw/dagledger/internal/config"
	"github.com/tcfw/dagledger/pkg/storage"
)

type NodeOption func(*Node) error

// WithConfig uses c instead of reading the config files
func WithConfig(c *config.Config) NodeOption {
	return func(n *Node) error {
		n.cfg = c
		return nil
	}
}

// WithBackend uses b instead of opening the pebble store at storage.path
func WithBackend(b storage.Backend) NodeOption {
	return func(n *Node) error {
		n.backend = b
		return nil
	}
}

func WithLogger(l *logrus.Logger) NodeOption {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

// WithRetry bounds the attempts made for a submission failing on storage
func WithRetry(attempts int) NodeOption {
	return func(n *Node) error {
		n.retries = attempts
		return nil
	}
}

// © 2025 arena-cache authors. MIT License.
package loro

import (
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/internal/id"
)

// Option is a functional option for NewDocument: immutable once applied,
// no live reconfiguration.
type Option func(*config)

type config struct {
	peer            id.Peer
	hasPeer         bool
	logger          *zap.Logger
	metricsReg      *prometheus.Registry
	blockCacheBytes int64
	detachedEditing bool
}

func defaultConfig() *config {
	return &config{
		logger:          zap.NewNop(),
		blockCacheBytes: 64 << 20,
	}
}

// WithPeerID pins the document's authoring identity instead of letting it
// be rolled randomly.
func WithPeerID(p id.Peer) Option {
	return func(c *config) { c.peer, c.hasPeer = p, true }
}

// WithLogger plugs an external zap.Logger. The engine never logs on the hot
// apply path; only slow events (block flush, snapshot export/import, import
// errors) are emitted.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation. Passing nil disables
// metrics (the default).
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) { c.metricsReg = reg }
}

// WithBlockCacheBytes bounds the decoded-block cache's byte budget.
func WithBlockCacheBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.blockCacheBytes = n
		}
	}
}

// WithDetachedEditing allows local edits to continue while checked out to a
// historical version. Off by default:
// editing while detached returns ErrDetachedReadOnly.
func WithDetachedEditing(enabled bool) Option {
	return func(c *config) { c.detachedEditing = enabled }
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if !cfg.hasPeer {
		cfg.peer = randomPeer()
	}
	return cfg
}

var peerRand = rand.New(rand.NewSource(time.Now().UnixNano()))

func randomPeer() id.Peer {
	return id.Peer(peerRand.Uint64())
}

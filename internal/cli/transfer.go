package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rudransh-shrivastava/privosend/internal/config"
	"github.com/rudransh-shrivastava/privosend/internal/node"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
	"github.com/schollz/progressbar/v3"
)

// newRelayFactory builds the configured relay backend. The returned close
// function releases shared clients.
func newRelayFactory(ctx context.Context, c *config.Config) (relay.Factory, func(), error) {
	switch c.Relay {
	case config.RelayRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("%w: %v", relay.ErrRelayUnavailable, err)
		}
		return relay.RedisFactory(client, log), func() { _ = client.Close() }, nil
	default:
		return relay.WebSocketFactory(c.RelayURL, log), func() {}, nil
	}
}

func webrtcConfig(c *config.Config) webrtc.Config {
	return webrtc.Config{
		ICEServers:  c.STUNServers,
		OpenTimeout: c.OpenTimeout,
		Logger:      log,
	}
}

// progressBars renders one byte progress bar per transfer code. A node
// observing both ends of one code needs one progressBars per role.
type progressBars struct {
	mu     sync.Mutex
	bars   map[string]*progressbar.ProgressBar
	desc   string
	newBar func(total int64, desc ...string) *progressbar.ProgressBar
}

func newProgressBars(desc string) *progressBars {
	return &progressBars{
		bars:   make(map[string]*progressbar.ProgressBar),
		desc:   desc,
		newBar: progressbar.DefaultBytes,
	}
}

func (p *progressBars) update(code string, pr transfer.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bar, ok := p.bars[code]
	if !ok {
		bar = p.newBar(pr.Total, p.desc)
		p.bars[code] = bar
	}
	_ = bar.Set64(pr.Bytes)
	if pr.Percent >= 100 {
		_ = bar.Finish()
	}
}

func newNode(relays relay.Factory, bars *progressBars, opts transfer.Options) (*node.Node, error) {
	opts.ChunkSize = cfg.ChunkSize
	return node.New(node.Options{
		NewRelay: relays,
		WebRTC:   webrtcConfig(cfg),
		Transfer: opts,
		Logger:   log,
		OnStatus: func(code string, s node.Status) {
			log.Info("Transfer status", "code", code, "status", s.String())
		},
		OnProgress: bars.update,
	})
}

// waitInterruptible waits for t, resetting it on SIGINT or SIGTERM.
func waitInterruptible(ctx context.Context, t *node.Transfer) (*node.Result, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-t.Done():
	case <-ctx.Done():
		log.Info("Cancelling transfer", "code", t.Code)
		t.Reset()
	}
	return t.Wait()
}

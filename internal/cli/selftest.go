package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	pion "github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/privosend/internal/node"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
	"github.com/spf13/cobra"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest file-path",
	Short: "send a file to yourself over a loopback peer connection",
	Long:  `selftest runs a sender and a receiver in one process through an in-memory relay and checks the received bytes match the file`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wcfg := webrtcConfig(cfg)
		wcfg.ICEServers = nil

		start := time.Now()
		res, sum, err := runSelftest(cmd.Context(), args[0], wcfg, transfer.Options{ChunkSize: cfg.ChunkSize},
			newProgressBars("sending"), newProgressBars("receiving"), log)
		if err != nil {
			return err
		}

		fmt.Printf("OK %s: %d bytes in %s, sha256 %s\n", res.Metadata.Name, len(res.Data), time.Since(start).Round(time.Millisecond), sum)
		return nil
	},
}

// runSelftest sends path between two nodes sharing an in-process hub over
// loopback ICE and returns the received result with its checksum. Each
// role reports progress to its own bars.
func runSelftest(ctx context.Context, path string, wcfg webrtc.Config, opts transfer.Options, sendBars, recvBars *progressBars, logger *slog.Logger) (*node.Result, string, error) {
	se := pion.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)
	wcfg.SettingEngine = &se

	relays := relay.LocalFactory(relay.NewHub(logger))
	newSelftestNode := func(bars *progressBars) (*node.Node, error) {
		return node.New(node.Options{
			NewRelay:   relays,
			WebRTC:     wcfg,
			Transfer:   opts,
			Logger:     logger,
			OnProgress: bars.update,
		})
	}

	sender, err := newSelftestNode(sendBars)
	if err != nil {
		return nil, "", err
	}
	receiver, err := newSelftestNode(recvBars)
	if err != nil {
		return nil, "", err
	}

	send, err := sender.SendFile(ctx, path)
	if err != nil {
		return nil, "", err
	}
	recv, err := receiver.Receive(ctx, send.Code)
	if err != nil {
		send.Reset()
		return nil, "", err
	}

	res, err := waitInterruptible(ctx, recv)
	if err != nil {
		send.Reset()
		return nil, "", err
	}
	if _, err := waitInterruptible(ctx, send); err != nil {
		return nil, "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	want, err := node.Checksum(f)
	if err != nil {
		return nil, "", err
	}
	got, err := node.Checksum(bytes.NewReader(res.Data))
	if err != nil {
		return nil, "", err
	}
	if got != want {
		return nil, "", fmt.Errorf("checksum mismatch: sent %s, received %s", want, got)
	}
	return res, got, nil
}

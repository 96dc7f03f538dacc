package cli

import (
	"fmt"

	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send file-path",
	Short: "send a file to a peer",
	Long:  `send prints a six digit room code and waits for a receiver to join it, then streams the file over a direct WebRTC data channel`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		relays, closeRelays, err := newRelayFactory(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRelays()

		n, err := newNode(relays, newProgressBars("sending"), transfer.Options{})
		if err != nil {
			return err
		}

		t, err := n.SendFile(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Room code: %s\n", t.Code)
		fmt.Printf("On the other machine run: privosend receive %s\n", t.Code)

		res, err := waitInterruptible(ctx, t)
		if err != nil {
			return err
		}
		fmt.Printf("Sent %s (%d bytes)\n", res.Metadata.Name, res.Metadata.Size)
		return nil
	},
}

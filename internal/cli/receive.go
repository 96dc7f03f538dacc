package cli

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/privosend/internal/node"
	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/spf13/cobra"
)

var outputDir string

var receiveCmd = &cobra.Command{
	Use:   "receive room-code",
	Short: "receive a file from a peer",
	Long:  `receive joins the room code printed by the sender and saves the incoming file to the output directory`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		relays, closeRelays, err := newRelayFactory(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRelays()

		n, err := newNode(relays, newProgressBars("receiving"), transfer.Options{})
		if err != nil {
			return err
		}

		t, err := n.Receive(ctx, args[0])
		if err != nil {
			return err
		}

		res, err := waitInterruptible(ctx, t)
		if err != nil && !(errors.Is(err, transfer.ErrSizeMismatch) && res != nil) {
			return err
		}

		path, saveErr := node.SaveResult(outputDir, res)
		if saveErr != nil {
			return saveErr
		}
		if err != nil {
			log.Warn("Saved file failed size verification", "path", path, "declared", res.Metadata.Size, "received", len(res.Data))
			return err
		}
		fmt.Printf("Saved %s (%d bytes)\n", path, len(res.Data))
		return nil
	},
}

func init() {
	receiveCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "directory to save the received file in")
}

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rudransh-shrivastava/privosend/internal/server"
	"github.com/rudransh-shrivastava/privosend/internal/store"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	cloudServer   string
	cloudSender   string
	cloudOutput   string
	cloudInfoOnly bool
)

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "share files through an expiring cloud drop",
}

var cloudUploadCmd = &cobra.Command{
	Use:   "upload file-path...",
	Short: "upload files and print a share code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cloudSender == "" {
			return fmt.Errorf("--name is required")
		}

		up, err := cloudClient().Upload(cmd.Context(), cloudSender, args)
		if err != nil {
			return err
		}
		fmt.Printf("Share code: %s\n", up.ShareCode)
		fmt.Printf("%d file(s), expires %s\n", up.FileCount, up.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	},
}

var cloudDownloadCmd = &cobra.Command{
	Use:   "download share-code",
	Short: "download the files behind a share code as a zip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, ok := store.NormalizeShareCode(args[0])
		if !ok {
			return fmt.Errorf("share code must look like XXXX-XXXX")
		}

		client := cloudClient()
		info, err := client.Validate(cmd.Context(), code)
		if err != nil {
			return err
		}
		fmt.Printf("From %s: %d file(s), %d bytes, %d of %d downloads used\n",
			info.SenderName, len(info.Files), info.TotalSize, info.DownloadCount, info.MaxDownloads)
		for _, f := range info.Files {
			fmt.Printf("  %s (%d bytes)\n", f.Name, f.Size)
		}
		if cloudInfoOnly {
			return nil
		}

		if err := os.MkdirAll(cloudOutput, 0o755); err != nil {
			return err
		}
		path := filepath.Join(cloudOutput, fmt.Sprintf("files-%s.zip", code))
		f, err := os.Create(path)
		if err != nil {
			return err
		}

		bar := progressbar.DefaultBytes(-1, "downloading")
		_, err = client.Download(cmd.Context(), code, io.MultiWriter(f, bar))
		_ = bar.Finish()
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(path)
			return err
		}
		fmt.Printf("Saved %s\n", path)
		return nil
	},
}

func cloudClient() *server.Client {
	base := cloudServer
	if base == "" {
		base = server.HTTPBase(cfg.RelayURL)
	}
	return server.NewClient(base)
}

func init() {
	cloudCmd.PersistentFlags().StringVar(&cloudServer, "server", "", "cloud-drop server URL (default derived from PRIVOSEND_RELAY_URL)")
	cloudUploadCmd.Flags().StringVar(&cloudSender, "name", "", "sender name shown to recipients")
	cloudDownloadCmd.Flags().StringVarP(&cloudOutput, "output", "o", ".", "directory to save the archive in")
	cloudDownloadCmd.Flags().BoolVar(&cloudInfoOnly, "info", false, "only show what the share code contains")

	cloudCmd.AddCommand(cloudUploadCmd)
	cloudCmd.AddCommand(cloudDownloadCmd)
}

// Command seedcore runs the SeedCore download engine as a standalone
// process, hosting a Session and driving it from the command line — the
// same role the teacher's cmd/rain plays for its own Session, generalized
// onto cobra subcommands for the torrent operations §6 of the spec exposes
// to a UI collaborator (run, add-torrent, add-magnet, add-cloud, list,
// start, pause, remove); there are no debrid or settings subcommands.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	seedcore "github.com/vinayydv3695/SeedCore"
	"github.com/vinayydv3695/SeedCore/internal/logger"
	"github.com/vinayydv3695/SeedCore/internal/persistence"
	"github.com/vinayydv3695/SeedCore/internal/platformdir"
	"github.com/vinayydv3695/SeedCore/internal/session"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "seedcore",
		Short: "BitTorrent and debrid download engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML settings file (defaults to the platform config dir)")
	root.AddCommand(
		newRunCmd(),
		newAddTorrentCmd(),
		newAddMagnetCmd(),
		newAddCloudCmd(),
		newListCmd(),
		newStartCmd(),
		newPauseCmd(),
		newRemoveCmd(),
	)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*seedcore.Config, error) {
	path := configPath
	if path == "" {
		dir, err := platformdir.Default()
		if err != nil {
			return nil, err
		}
		path = dir + "/config.yaml"
	}
	return seedcore.LoadConfig(path)
}

// openSession builds a Session and replays every persisted torrent,
// mirroring the teacher's cmd/rain session.New(config, nil) + resumer
// replay sequence.
func openSession() (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	dbPath, err := platformdir.Expand(cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := persistence.Open(dbPath)
	if err != nil {
		return nil, err
	}
	s, err := session.New(cfg, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	if err := s.LoadSavedTorrents(); err != nil {
		logger.New("cmd").Warningln("loading saved torrents:", err)
	}
	return s, nil
}

func newRunCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			select {}
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func newAddTorrentCmd() *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "add-torrent <file>",
		Short: "Add a .torrent file (add_torrent_file)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.AddTorrentFile(raw, savePath)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save-path", ".", "destination directory")
	return cmd
}

func newAddMagnetCmd() *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "add-magnet <uri>",
		Short: "Add a magnet link (add_magnet_link)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.AddMagnetLink(args[0], savePath)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&savePath, "save-path", ".", "destination directory")
	return cmd
}

func newAddCloudCmd() *cobra.Command {
	var provider, savePath string
	cmd := &cobra.Command{
		Use:   "add-cloud <magnet-or-hash>",
		Short: "Add a debrid-backed cloud transfer (add_cloud_torrent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.AddCloudTorrent(args[0], provider, savePath)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "real-debrid", "debrid provider name")
	cmd.Flags().StringVar(&savePath, "save-path", ".", "destination directory")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered torrent (get_torrents)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			out, err := json.MarshalIndent(s.GetTorrents(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a queued or paused torrent (start_torrent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.StartTorrent(args[0])
		},
	}
}

func newPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a running torrent (pause_torrent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.PauseTorrent(args[0])
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var deleteFiles bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a torrent (remove_torrent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.RemoveTorrent(args[0], deleteFiles)
		},
	}
	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "also delete downloaded files")
	return cmd
}

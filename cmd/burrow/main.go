package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/blobstore"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/pack"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/cuemby/burrow/pkg/xrepo"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - content-addressed mono-repo sync backend",
	Long: `Burrow is a content-addressed version control backend: a packed
blob store with delta-dictionary compression, a segmented commit graph,
and a cross-repo commit synchronization engine.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "/var/lib/burrow", "Data directory")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(backsyncCmd)
	rootCmd.AddCommand(crossrepoCmd)
	rootCmd.AddCommand(packCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// Backsync command

var backsyncCmd = &cobra.Command{
	Use:   "backsync",
	Short: "Sync a batch of commits from the large repo into a small repo",
	Long: `Backsync reads a batch of source changesets (topologically ordered,
JSON array) and syncs each one into the target repository, recording the
outcome in the synced-commit mapping.`,
	RunE: runBacksync,
}

func init() {
	backsyncCmd.Flags().StringP("file", "f", "", "JSON file with the changesets to sync (required)")
	backsyncCmd.Flags().String("config", "", "Sync version registry manifest (required)")
	backsyncCmd.Flags().Int32("source-repo", 0, "Source (large) repo id")
	backsyncCmd.Flags().String("source-name", "large", "Source repo name")
	backsyncCmd.Flags().Int32("target-repo", 1, "Target (small) repo id")
	backsyncCmd.Flags().String("target-name", "small", "Target repo name")
	backsyncCmd.Flags().Bool("discard-empty", false, "Discard ordinary commits that backsync to empty")
	_ = backsyncCmd.MarkFlagRequired("file")
	_ = backsyncCmd.MarkFlagRequired("config")
}

func runBacksync(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
	sourceRepo, _ := cmd.Flags().GetInt32("source-repo")
	sourceName, _ := cmd.Flags().GetString("source-name")
	targetRepo, _ := cmd.Flags().GetInt32("target-repo")
	targetName, _ := cmd.Flags().GetString("target-name")
	discardEmpty, _ := cmd.Flags().GetBool("discard-empty")

	registry, err := xrepo.LoadRegistry(configPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var commits []*types.Changeset
	if err := json.Unmarshal(data, &commits); err != nil {
		return fmt.Errorf("failed to parse changesets: %w", err)
	}

	mapping, err := xrepo.NewBoltMapping(dataDir)
	if err != nil {
		return err
	}
	defer mapping.Close()

	raw, err := blobstore.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	blobs, err := blobstore.New(raw, 3)
	if err != nil {
		return err
	}
	defer blobs.Close()

	pair := xrepo.RepoPair{
		SourceRepo:     types.RepoID(sourceRepo),
		SourceRepoName: types.RepoName(sourceName),
		TargetRepo:     types.RepoID(targetRepo),
		TargetRepoName: types.RepoName(targetName),
		SmallToLarge:   false,
	}
	driver := xrepo.NewDriver(pair, registry, mapping, blobs, xrepo.ContextBacksyncer)
	driver.DiscardEmptyOrdinary = discardEmpty

	return driver.Run(context.Background(), commits)
}

// Crossrepo commands

var crossrepoCmd = &cobra.Command{
	Use:   "crossrepo",
	Short: "Query the synced-commit mapping",
}

var crossrepoMapCmd = &cobra.Command{
	Use:   "map <source-changeset>",
	Short: "Show the mapping outcome for a source changeset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")
		sourceRepo, _ := cmd.Flags().GetInt32("source-repo")
		targetRepo, _ := cmd.Flags().GetInt32("target-repo")

		cs, err := types.ParseChangesetID(args[0])
		if err != nil {
			return err
		}
		mapping, err := xrepo.NewBoltMapping(dataDir)
		if err != nil {
			return err
		}
		defer mapping.Close()

		row, err := mapping.Get(context.Background(), types.RepoID(sourceRepo), cs, types.RepoID(targetRepo))
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%s is not synced", cs)
		}
		fmt.Printf("Outcome: %s\n", row.Outcome)
		fmt.Printf("Version: %s\n", row.Version)
		if row.TargetCS != nil {
			fmt.Printf("Target:  %s\n", row.TargetCS)
		}
		return nil
	},
}

func init() {
	crossrepoMapCmd.Flags().Int32("source-repo", 0, "Source repo id")
	crossrepoMapCmd.Flags().Int32("target-repo", 1, "Target repo id")
	crossrepoCmd.AddCommand(crossrepoMapCmd)
}

// Pack commands

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Inspect packed blobs",
}

var packInspectCmd = &cobra.Command{
	Use:   "inspect <pack-key>",
	Short: "List the entries of a stored pack with their sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir")

		raw, err := blobstore.NewBoltStore(dataDir)
		if err != nil {
			return err
		}
		defer raw.Close()

		wire, err := raw.Get(context.Background(), args[0])
		if err != nil {
			return err
		}
		if wire == nil {
			return fmt.Errorf("pack %s not found", args[0])
		}
		envelope, err := pack.DecodeEnvelope(wire)
		if err != nil {
			return err
		}
		if envelope.Packed == nil {
			return fmt.Errorf("%s is not a pack", args[0])
		}

		fmt.Printf("Pack: %s (%d entries, %s on disk)\n",
			envelope.Packed.Key, len(envelope.Packed.Entries), datasize.ByteSize(len(wire)).HumanReadable())
		for i := range envelope.Packed.Entries {
			entry := &envelope.Packed.Entries[i]
			size, err := pack.EntryCompressedSize(entry)
			if err != nil {
				return err
			}
			switch entry.Value.Kind {
			case pack.PackedZstdFromDict:
				fmt.Printf("  %s  %s  (delta of %s)\n",
					entry.Key, datasize.ByteSize(size).HumanReadable(), entry.Value.DictKey)
			default:
				fmt.Printf("  %s  %s\n", entry.Key, datasize.ByteSize(size).HumanReadable())
			}
		}
		return nil
	},
}

func init() {
	packCmd.AddCommand(packInspectCmd)
}

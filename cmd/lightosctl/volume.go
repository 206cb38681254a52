package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lightbitslabs/lightos-driver/pkg/connector"
)

// Volume commands
var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage volumes",
}

var volumeCreateCmd = &cobra.Command{
	Use:   "create ID",
	Short: "Create a volume for a logical identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		vol, err := drv.CreateVolume(cmd.Context(), args[0], size)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Volume %s created (UUID %s, %d GiB)\n", vol.Name, vol.UUID, vol.Size)
		return nil
	},
}

var volumeDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete the volume for a logical identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		if err := drv.DeleteVolume(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Volume for %s deleted\n", args[0])
		return nil
	},
}

var volumeExtendCmd = &cobra.Command{
	Use:   "extend ID",
	Short: "Grow a volume to a new size",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		if err := drv.ExtendVolume(cmd.Context(), args[0], size); err != nil {
			return err
		}
		fmt.Printf("✓ Volume for %s extended to %d GiB\n", args[0], size)
		return nil
	},
}

var volumeShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the cluster-side state of a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		vol, err := drv.GetVolume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Name:        %s\n", vol.Name)
		fmt.Printf("UUID:        %s\n", vol.UUID)
		fmt.Printf("Project:     %s\n", vol.ProjectName)
		fmt.Printf("Size:        %d GiB\n", vol.Size)
		fmt.Printf("Replicas:    %d\n", vol.NumReplicas)
		fmt.Printf("Compression: %t\n", vol.Compression)
		fmt.Printf("State:       %s\n", vol.State)
		fmt.Printf("ACL:         %v\n", vol.ACL.Values)
		return nil
	},
}

var volumeCloneCmd = &cobra.Command{
	Use:   "clone ID",
	Short: "Clone a new volume from an existing volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")
		source, _ := cmd.Flags().GetString("source")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		vol, err := drv.CreateClonedVolume(cmd.Context(), args[0], size, source)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Volume %s cloned from %s (UUID %s)\n", vol.Name, source, vol.UUID)
		return nil
	},
}

var volumeFromSnapshotCmd = &cobra.Command{
	Use:   "from-snapshot ID",
	Short: "Create a volume seeded from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, _ := cmd.Flags().GetInt64("size")
		snapshot, _ := cmd.Flags().GetString("snapshot")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		vol, err := drv.CreateVolumeFromSnapshot(cmd.Context(), args[0], size, snapshot)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Volume %s created from snapshot %s (UUID %s)\n", vol.Name, snapshot, vol.UUID)
		return nil
	},
}

func init() {
	volumeCmd.AddCommand(volumeCreateCmd)
	volumeCmd.AddCommand(volumeDeleteCmd)
	volumeCmd.AddCommand(volumeExtendCmd)
	volumeCmd.AddCommand(volumeShowCmd)
	volumeCmd.AddCommand(volumeCloneCmd)
	volumeCmd.AddCommand(volumeFromSnapshotCmd)

	volumeCreateCmd.Flags().Int64("size", 0, "Volume size in GiB")
	volumeCreateCmd.MarkFlagRequired("size")

	volumeExtendCmd.Flags().Int64("size", 0, "New volume size in GiB")
	volumeExtendCmd.MarkFlagRequired("size")

	volumeCloneCmd.Flags().Int64("size", 0, "Clone size in GiB")
	volumeCloneCmd.Flags().String("source", "", "Logical identifier of the source volume")
	volumeCloneCmd.MarkFlagRequired("size")
	volumeCloneCmd.MarkFlagRequired("source")

	volumeFromSnapshotCmd.Flags().Int64("size", 0, "Volume size in GiB")
	volumeFromSnapshotCmd.Flags().String("snapshot", "", "Logical identifier of the source snapshot")
	volumeFromSnapshotCmd.MarkFlagRequired("size")
	volumeFromSnapshotCmd.MarkFlagRequired("snapshot")
}

// Snapshot commands
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage snapshots",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create ID",
	Short: "Snapshot a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("volume")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		snap, err := drv.CreateSnapshot(cmd.Context(), args[0], source)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Snapshot %s created (UUID %s)\n", snap.Name, snap.UUID)
		return nil
	},
}

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		if err := drv.DeleteSnapshot(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Snapshot for %s deleted\n", args[0])
		return nil
	},
}

func init() {
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotCreateCmd.Flags().String("volume", "", "Logical identifier of the source volume")
	snapshotCreateCmd.MarkFlagRequired("volume")
}

// Attachment commands
var attachCmd = &cobra.Command{
	Use:   "attach ID",
	Short: "Negotiate host access and print the connection descriptor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		props := connector.NewHostConnector(cfg.HostNQNPath, cfg.DiscoveryClientEndpoint).Properties()

		desc, err := drv.InitializeConnection(cmd.Context(), args[0], props)
		if err != nil {
			return err
		}
		fmt.Printf("Transport:     %s\n", desc.DriverVolumeType)
		fmt.Printf("Subsystem NQN: %s\n", desc.SubsysNQN)
		fmt.Printf("Volume UUID:   %s\n", desc.VolumeUUID)
		fmt.Printf("Host NQN:      %s\n", desc.HostNQN)
		return nil
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach ID",
	Short: "Revoke host access to a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		drv, _, err := newDriver(cmd.Context())
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		props := connector.NewHostConnector(cfg.HostNQNPath, cfg.DiscoveryClientEndpoint).Properties()

		if err := drv.TerminateConnection(cmd.Context(), args[0], props, force); err != nil {
			return err
		}
		fmt.Printf("✓ Volume for %s detached\n", args[0])
		return nil
	},
}

func init() {
	detachCmd.Flags().Bool("force", false, "Proceed even without a host NQN (best-effort cleanup)")
}

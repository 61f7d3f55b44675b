package commands

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"mlsgroup/internal/crypto"
	"mlsgroup/internal/domain/types"
	"mlsgroup/internal/message"
	"mlsgroup/internal/services/group"
)

func createCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group with yourself as the only member",
		RunE: func(cmd *cobra.Command, args []string) error {
			var id []byte
			if groupID != "" {
				var err error
				if id, err = hex.DecodeString(groupID); err != nil {
					return fmt.Errorf("group id: %w", err)
				}
			}
			a, err := unlock()
			if err != nil {
				return err
			}
			g, err := a.Client.CreateGroup(id, nil)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			fmt.Printf("Group %x created at epoch %d\n", g.GroupID(), g.CurrentEpoch())
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group-id", "", "hex group id (default: generated)")
	return cmd
}

func addCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "add <group> <keypackage-file>...",
		Short: "Add members and write the commit, welcome and group info",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kps := make([]*message.Message, 0, len(args)-1)
			for _, path := range args[1:] {
				kp, err := readMessage(path)
				if err != nil {
					return err
				}
				kps = append(kps, kp)
			}
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			out, err := g.AddMembers(kps)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			return writeCommitOutput(outDir, g, out)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func commitCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "commit <group>",
		Short: "Commit pending proposals and start a new epoch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			out, err := g.Commit(nil)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			return writeCommitOutput(outDir, g, out)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	return cmd
}

func writeCommitOutput(dir string, g *group.Group, out *group.CommitOutput) error {
	files := map[string]*message.Message{
		"commit.msg":    out.CommitMessage,
		"welcome.msg":   out.WelcomeMessage,
		"groupinfo.msg": out.GroupInfo,
	}
	for name, m := range files {
		if m == nil {
			continue
		}
		path := filepath.Join(dir, name)
		if err := writeMessage(path, m); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", path)
	}
	for _, e := range out.ConversionErrors {
		fmt.Printf("warning: %v\n", e)
	}
	fmt.Printf("Group %x now at epoch %d (%d applied, %d unused)\n",
		g.GroupID(), g.CurrentEpoch(), len(out.AppliedProposals), len(out.UnusedProposals))
	return nil
}

func joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <welcome-file>",
		Short: "Join a group from a Welcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			welcome, err := readMessage(args[0])
			if err != nil {
				return err
			}
			a, err := unlock()
			if err != nil {
				return err
			}
			g, _, err := a.Client.JoinGroup(welcome)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			fmt.Printf("Joined group %x at epoch %d as member %d\n",
				g.GroupID(), g.CurrentEpoch(), g.CurrentMemberIndex())
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <group> <message-file>",
		Short: "Apply a received message to a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(args[1])
			if err != nil {
				return err
			}
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			got, err := g.ProcessIncomingMessage(msg)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			printReceived(g, got)
			return nil
		},
	}
}

func printReceived(g *group.Group, got types.ReceivedMessage) {
	switch m := got.(type) {
	case types.ApplicationMessage:
		fmt.Printf("[%d %s] %s\n", m.Sender.Index, m.Sender.SigningIdentity.Credential.Identity, m.Data)
	case types.ProposalMessage:
		fmt.Printf("proposal %T from member %d cached\n", m.Proposal, m.Sender.Index)
	case types.CommitMessage:
		switch e := m.Effect.(type) {
		case types.NewEpoch:
			fmt.Printf("commit from member %d applied; now at epoch %d (%d proposals)\n",
				m.Committer.Index, g.CurrentEpoch(), len(e.AppliedProposals))
		case types.Removed:
			fmt.Printf("removed from the group by member %d\n", m.Committer.Index)
		case types.ReInit:
			fmt.Printf("group reinitialized as %x\n", e.GroupID)
		}
	case types.WelcomeMessage, types.GroupInfoMessage, types.KeyPackageMessage:
		fmt.Printf("%T is valid\n", m)
	}
}

func sendCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "send <group> <text>",
		Short: "Encrypt an application message to the group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			m, err := g.EncryptApplicationMessage([]byte(args[1]), nil, false)
			if err != nil {
				return err
			}
			if err := g.WriteToStorage(); err != nil {
				return err
			}
			return writeMessage(out, m)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func membersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "members <group>",
		Short: "List the members of a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			self := g.CurrentMemberIndex()
			fmt.Printf("Group %x, epoch %d\n", g.GroupID(), g.CurrentEpoch())
			for _, m := range g.Members() {
				marker := " "
				if m.Index == self {
					marker = "*"
				}
				fmt.Printf("%s %3d  %-20s %s\n", marker, m.Index,
					m.SigningIdentity.Credential.Identity, crypto.Fingerprint(m.SigningIdentity.SignatureKey))
			}
			return nil
		},
	}
}

func exportSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-secret <group> <label> <length>",
		Short: "Derive a secret from the current epoch",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("length: %w", err)
			}
			g, err := loadGroup(args[0])
			if err != nil {
				return err
			}
			secret, err := g.ExportSecret([]byte(args[1]), nil, n)
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(secret))
			return nil
		},
	}
}

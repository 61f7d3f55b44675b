package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a signing identity and store it securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errNoPassphrase
			}
			_, fp, err := deps.Identity.GenerateIdentity(passphrase, []byte(name))
			if err != nil {
				return err
			}
			fmt.Printf("Identity created.\nFingerprint: %s\n", fp)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name carried in the basic credential")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return errNoPassphrase
			}
			fp, err := deps.Identity.FingerprintIdentity(passphrase)
			if err != nil {
				return err
			}
			fmt.Printf("Fingerprint: %s\n", fp)
			return nil
		},
	}
}

func keyPackageCmd() *cobra.Command {
	var (
		out string
		n   int
	)
	cmd := &cobra.Command{
		Use:   "keypackage",
		Short: "Write single-use key packages for others to add you with",
		Long:  "With -n 1 the key package is written to the -o file; otherwise -o is a directory that receives kp-1.msg ... kp-N.msg.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := unlock()
			if err != nil {
				return err
			}
			kps, err := a.Client.GenerateKeyPackages(n)
			if err != nil {
				return err
			}
			if n == 1 {
				if err := writeMessage(out, kps[0]); err != nil {
					return err
				}
				fmt.Printf("Key package written to %s\n", out)
				return nil
			}
			for i, kp := range kps {
				if err := writeMessage(filepath.Join(out, fmt.Sprintf("kp-%d.msg", i+1)), kp); err != nil {
					return err
				}
			}
			fmt.Printf("%d key packages written to %s\n", len(kps), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, or directory when -n > 1")
	cmd.Flags().IntVarP(&n, "count", "n", 1, "number of key packages")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

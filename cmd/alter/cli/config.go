package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alterlabs/alter/internal/credential"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.SetConfig(args[0], args[1]); err != nil {
			return fmt.Errorf("set config: %w", err)
		}
		fmt.Printf("saved: %s\n", args[0])
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value (secrets are masked)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		val, err := s.GetConfig(args[0])
		if err != nil {
			return err
		}
		switch {
		case val == "":
			fmt.Println("(not set)")
		case credential.IsEncrypted(val):
			mgr, err := credential.NewManager()
			if err != nil {
				return err
			}
			plain, err := mgr.Decrypt(val)
			if err != nil {
				return err
			}
			fmt.Println(credential.MaskSecret(plain))
		default:
			fmt.Println(val)
		}
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.DeleteConfig(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted: %s\n", args[0])
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [provider] [api-key]",
	Short: "Store a provider API key, encrypted with a machine-derived key",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storeAPIKey(args[0], args[1]); err != nil {
			return fmt.Errorf("store api key: %w", err)
		}
		fmt.Printf("saved %s api key (%s)\n", args[0], credential.MaskSecret(args[1]))
		return nil
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configDeleteCmd)
	configCmd.AddCommand(configSetKeyCmd)
}

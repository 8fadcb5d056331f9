package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pkjwt/pkjwt/internal/config"
)

var (
	flagConfig string
	flagDotEnv string

	rootCmd = &cobra.Command{
		Use:   "pkjwt",
		Short: "Client credentials with private_key_jwt and rotating RSA keys",
		Long: `pkjwt signs client assertions with a rotating RSA key, exchanges them for
access tokens at the identity provider, publishes the public key as a JWKS
and validates the provider's access tokens on a protected endpoint.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDotEnv == "" {
				return nil
			}
			// A missing .env is normal outside development.
			if err := godotenv.Load(flagDotEnv); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", flagDotEnv, err)
			}
			return nil
		},
	}
)

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("PKJWT_CONFIG"), "path to the YAML config file (env PKJWT_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagDotEnv, "dotenv", ".env", "optional .env file loaded before the config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(jwksCmd)
}

func loadApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, os.Stderr)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Generate a new signing key, replacing the current one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.close(context.WithoutCancel(cmd.Context()))

		rotator, err := a.rotator()
		if err != nil {
			return err
		}
		km, err := rotator.Rotate(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "New Certificates created... kid=%s\n", km.KeyID)
		return nil
	},
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "billing-connector",
	Short: "Payment to fiscal document connector",
	Long:  "Turns Getnet payment notifications into Facturante invoices and credit notes, and reconciles missed payments.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Amine-Ecssr/event-management-system-sub004/internal/cli"
)

var rootCmd = &cobra.Command{Use: "evflow"}

func main() {
	// Load .env if present
	if err := godotenv.Load(); err == nil {
		fmt.Println("Loaded configuration from .env")
	}

	rootCmd.PersistentFlags().String("db", os.Getenv("DATABASE_URL"), "Database connection string")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

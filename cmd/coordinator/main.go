package main

import (
	"fmt"
	"os"

	"github.com/G159w/chat-bot-cordinator/internal/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{Use: "coordinator"}

func main() {
	// Load .env if present; flags still take precedence.
	_ = godotenv.Load()
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

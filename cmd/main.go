package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quka-ai/supportchat/cmd/service"
)

func main() {
	root := &cobra.Command{
		Use:   "supportchat",
		Short: "supportchat",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(service.NewCommand(), service.NewSeedCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

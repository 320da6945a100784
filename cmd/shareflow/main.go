/*
This is the entrypoint for the shareflow binary.
*/
package main

import (
	"fmt"
	"os"

	"github.com/datafoundry/shareflow/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

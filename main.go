package main

import (
	"os"

	"github.com/openchargingcloud/wwcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command tmppg runs a throwaway PostgreSQL server.
package main

import (
	"context"
	"os"

	"github.com/mitchellwrosen/tmp-postgres/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute(context.Background()))
}

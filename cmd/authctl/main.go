package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/authctl"
)

func main() {
	os.Exit(authctl.New().Run(context.Background(), os.Args[1:]))
}

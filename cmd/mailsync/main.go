package main

import "github.com/hireloop/mailsync/internal/cli"

func main() {
	cli.Execute()
}

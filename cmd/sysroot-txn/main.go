package main

import "sysroot-txn/internal/cli"

func main() {
	cli.Execute()
}

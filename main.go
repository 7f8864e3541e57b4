package main

import "github.com/vibast-solutions/ms-go-billing-connector/cmd"

func main() {
	cmd.Execute()
}

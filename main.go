package main

import (
	"github.com/axellelanca/campaignshortener/cmd"
	_ "github.com/axellelanca/campaignshortener/cmd/cli"
	_ "github.com/axellelanca/campaignshortener/cmd/server"
)

func main() {
	cmd.Execute()
}

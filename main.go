package main

import (
	"log"

	"gedcom-review/app"
)

func main() {
	server := app.NewServer()
	log.Fatal(server.Start(""))
}

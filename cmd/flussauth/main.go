// Command flussauth serves the stream authorization backend.
package main

import (
	"log"

	"flussauth/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

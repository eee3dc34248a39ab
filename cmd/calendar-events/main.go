package main

import "github.com/pfrederiksen/calendar-events/internal/cli"

func main() {
	cli.Execute()
}

package main

import "digital_rf/cmd/drf/cmd"

func main() {
	cmd.Execute()
}

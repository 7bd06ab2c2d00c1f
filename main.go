package main

import "github.com/andresmejia3/sentinel-live/cmd"

func main() {
	cmd.Execute()
}

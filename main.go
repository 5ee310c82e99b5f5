package main

import (
	"github.com/joho/godotenv"

	"github.com/rmitchellscott/inkprep/cmd"
)

func main() {
	_ = godotenv.Load()
	cmd.Execute()
}

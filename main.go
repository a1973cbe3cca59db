package main

import "marshmallow-backend/cmd"

func main() {
	cmd.Execute()
}

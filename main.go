package main

import (
	"github.com/ValentinKolb/hwbridge/cmd"
)

func main() {
	cmd.Execute()
}

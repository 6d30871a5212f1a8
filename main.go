package main

import (
	"fmt"

	"github.com/virtexvirtuoso/Virtuoso-sub009/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}

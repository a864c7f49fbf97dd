package main

import (
	"fmt"

	"github.com/omnitalk/signaling-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}

package main

import (
	"os"

	"github.com/clktmr/sam3x/tools/sdsim"
)

func main() {
	sdsim.Main(os.Args)
}

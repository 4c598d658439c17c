package main

import (
	"os"

	"github.com/zhengshuai-xiao/BlockDedup/cmd"
	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

var logger = internal.GetLogger("blockdedup_main")

func main() {
	err := cmd.Main(os.Args)
	if err != nil {
		logger.Fatal(err)
	}
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/transientvariable/eventstreams/cmd"
)

const (
	exitCodeSuccess = iota
	exitCodeError
)

func main() {
	rootCmd, err := cmd.New().ExecuteC()
	if err == nil {
		os.Exit(exitCodeSuccess)
	}

	if cmdErr(err) {
		if !strings.HasSuffix(err.Error(), "\n") {
			fmt.Println()
		}
		fmt.Println(rootCmd.UsageString())
		os.Exit(exitCodeSuccess)
	}
	fmt.Println(err)
	os.Exit(exitCodeError)
}

func cmdErr(err error) bool {
	if err == nil {
		return false
	}

	keywords := []string{
		"unknown command",
		"unknown flag",
		"unknown shorthand flag",
	}

	cause := err.Error()
	for _, k := range keywords {
		if strings.Contains(cause, k) {
			return true
		}
	}
	return false
}

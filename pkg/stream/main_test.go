package stream

import (
	"os"
	"testing"

	"github.com/transientvariable/log-go"
)

func TestMain(m *testing.M) {
	if err := log.SetDefault(log.New(log.WithLevel("error"))); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

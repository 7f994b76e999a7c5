package tty_test

import (
	"os"
	"testing"

	"github.com/whexy/armhv/internal/tty"
)

func TestNewConsoleRequiresTTY(t *testing.T) {
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatalf("open /dev/null: %v", err)
	}
	defer devNull.Close()

	_, err = tty.NewConsole(devNull, os.Stdout, os.Stderr)
	if err == nil {
		t.Fatal("NewConsole(non-tty) succeeded, want ErrNoTTY")
	}
}

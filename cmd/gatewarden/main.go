package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gatewarden/gatewarden/internal/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		exit(err)
	}
}

// exit prints err scrubbed of credentials and terminates with the carried
// exit code. Errors without a code exit ExitError.
func exit(err error) {
	code, msg := ExitError, err.Error()
	var ece *exitCodeError
	if errors.As(err, &ece) {
		code, msg = ece.code, ece.msg
	}
	if msg != "" {
		fmt.Fprintln(os.Stderr, redact.String(msg))
	}
	os.Exit(code)
}

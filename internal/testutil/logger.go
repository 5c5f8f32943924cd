package testutil

import (
	"io"

	"github.com/dtroode/sheetkeeper/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(0, io.Discard)
}

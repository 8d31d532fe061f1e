package cachemirror

import (
	"os"

	rerrors "github.com/alxayo/streamcore/internal/errors"
)

func openForRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rerrors.NewIOError("cachemirror.open", err)
	}
	return f, nil
}

func createForWrite(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, rerrors.NewIOError("cachemirror.create", err)
	}
	return f, nil
}

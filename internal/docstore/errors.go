package docstore

import (
	apperrors "github.com/julianstephens/daystreak/internal/errors"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = apperrors.New("document store closed")

func isNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

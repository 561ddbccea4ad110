package storage

import (
	"errors"

	"github.com/JaimeStill/mrv/pkg/problem"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrEmptyKey   = errors.New("storage key must not be empty")
	ErrInvalidKey = errors.New("storage key contains invalid path segment")
)

func init() {
	problem.Register(problem.KindNotFound, ErrNotFound)
	problem.Register(problem.KindValidation, ErrEmptyKey, ErrInvalidKey)
}

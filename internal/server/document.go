package server

import (
	"errors"
	"regexp"

	"github.com/omnipdfs/relay/internal/ierr"
)

type DocumentIdValidator struct {
	documentIdRegex *regexp.Regexp
}

func NewDocumentIdValidator() *DocumentIdValidator {
	return &DocumentIdValidator{
		documentIdRegex: regexp.MustCompile(`^[\w-]+(:[\w-]+)*$`),
	}
}

func (v *DocumentIdValidator) Validate(documentId string) error {
	if len(documentId) > 128 || !v.documentIdRegex.MatchString(documentId) {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid documentId"))
	}

	return nil
}

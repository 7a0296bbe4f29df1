package extract

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/examrag/internal/model"
)

type textExtractor struct{}

func (textExtractor) ContentType() string {
	return model.ContentTypeText
}

func (textExtractor) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errors.New("text is not valid utf-8")
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func init() {
	Register(".txt", textExtractor{})
}

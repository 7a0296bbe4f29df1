package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/examrag/internal/model"
	appErr "github.com/xxxsen/examrag/internal/pkg/errors"
)

func TestExtractPlainText(t *testing.T) {
	text, contentType, err := Extract("notes/history.TXT", []byte("  JAMB was established in 1978.\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, model.ContentTypeText, contentType)
	require.Equal(t, "JAMB was established in 1978.", text)
}

func TestExtractMarkdownKeepsParagraphs(t *testing.T) {
	src := "# Overview\n\n**JAMB** was established in *1978*.\n\n- UTME\n- CAPS\n\n```\ncode line\n```\n"
	text, contentType, err := Extract("overview.md", []byte(src))
	require.NoError(t, err)
	require.Equal(t, model.ContentTypeMarkdown, contentType)
	require.Equal(t, "Overview\n\nJAMB was established in 1978.\n\nUTME\n\nCAPS\n\ncode line", text)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "unsupported", file: "image.png", data: []byte{0x89, 'P', 'N', 'G'}},
		{name: "empty", file: "blank.txt", data: []byte(" \n\t ")},
		{name: "invalid utf8", file: "bad.txt", data: []byte{0xff, 0xfe, 0xfd}},
		{name: "broken pdf", file: "broken.pdf", data: []byte("%PDF-1.4 not really")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Extract(tt.file, tt.data)
			require.Error(t, err)
			require.ErrorIs(t, err, appErr.ErrExtraction)
			var extractErr *Error
			require.True(t, errors.As(err, &extractErr))
			require.Equal(t, tt.file, extractErr.Source)
		})
	}
}

func TestSupported(t *testing.T) {
	require.True(t, Supported("a.pdf"))
	require.True(t, Supported("a.Markdown"))
	require.False(t, Supported("a.docx"))
}

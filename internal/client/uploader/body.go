package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"
)

const defaultPartContentType = "application/octet-stream"

var errBodyClosed = errors.New("multipart body closed")

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody streams a one-part multipart/form-data payload. The file is
// opened on the first read that reaches it and closed at EOF, on a read
// error, or on Close, whichever happens first.
type multipartBody struct {
	contentType string
	size        int64
	path        string

	mu       sync.Mutex
	prelude  *bytes.Reader
	epilogue *bytes.Reader
	file     *os.File
	fileDone bool
	closed   bool
	err      error
}

func newMultipartBody(fieldName, filePath, fileName string) (*multipartBody, error) {
	if fileName == "" {
		fileName = filepath.Base(filePath)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fieldName), quoteEscaper.Replace(fileName)))
	header.Set("Content-Type", partContentType(fileName))

	if _, err := mw.CreatePart(header); err != nil {
		return nil, fmt.Errorf("create form file part: %w", err)
	}
	prelude := append([]byte(nil), buf.Bytes()...)
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	epilogue := append([]byte(nil), buf.Bytes()...)

	size := int64(-1)
	if info, err := os.Stat(filePath); err == nil && info.Mode().IsRegular() {
		size = int64(len(prelude)) + info.Size() + int64(len(epilogue))
	}

	return &multipartBody{
		contentType: mw.FormDataContentType(),
		size:        size,
		path:        filePath,
		prelude:     bytes.NewReader(prelude),
		epilogue:    bytes.NewReader(epilogue),
	}, nil
}

// partContentType mirrors what a file stream reports for itself: a type
// looked up from the extension, or a generic binary type.
func partContentType(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		return defaultPartContentType
	}

	if kind := filetype.GetType(ext); kind.MIME.Value != "" {
		return kind.MIME.Value
	}

	return defaultPartContentType
}

func (b *multipartBody) ContentType() string {
	return b.contentType
}

// Size is the exact body length, or -1 when the file could not be stat'ed.
func (b *multipartBody) Size() int64 {
	return b.size
}

// Err reports the first read failure other than io.EOF.
func (b *multipartBody) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.err
}

func (b *multipartBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return 0, b.err
	}
	if b.closed {
		return 0, errBodyClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	if b.prelude.Len() > 0 {
		return b.prelude.Read(p)
	}

	if !b.fileDone {
		n, err := b.readFile(p)
		if err != nil {
			b.err = err
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}

	return b.epilogue.Read(p)
}

// readFile returns 0, nil once the file is exhausted.
func (b *multipartBody) readFile(p []byte) (int, error) {
	if b.file == nil {
		file, err := os.Open(b.path)
		if err != nil {
			b.fileDone = true
			return 0, fmt.Errorf("open file %q: %w", b.path, err)
		}
		b.file = file
	}

	n, err := b.file.Read(p)
	if err == nil {
		return n, nil
	}

	closeErr := b.closeFile()
	if errors.Is(err, io.EOF) {
		if closeErr != nil {
			return n, fmt.Errorf("close file %q: %w", b.path, closeErr)
		}
		return n, nil
	}

	return n, fmt.Errorf("read file %q: %w", b.path, err)
}

func (b *multipartBody) closeFile() error {
	b.fileDone = true
	if b.file == nil {
		return nil
	}

	err := b.file.Close()
	b.file = nil

	return err
}

// Close releases the file if it is still open. It is safe to call more than once.
func (b *multipartBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true

	return b.closeFile()
}

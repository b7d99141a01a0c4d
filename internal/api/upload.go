package api

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dharsanguruparan/fieldmemo/internal/apperr"
	"github.com/dharsanguruparan/fieldmemo/internal/model"
)

const maxFieldBytes = 64 << 10

type uploadedFile struct {
	fileName    string
	contentType string
	data        []byte
}

// capture converts the upload into a pipeline capture of the given kind.
func (f *uploadedFile) capture(kind model.CaptureKind) model.Capture {
	return model.Capture{Kind: kind, Data: f.data, FileName: f.fileName, ContentType: f.contentType}
}

type multipartForm struct {
	values map[string]string
	files  map[string]*uploadedFile
}

func (f *multipartForm) value(name string) string {
	return strings.TrimSpace(f.values[name])
}

// readForm streams a multipart body, enforcing the file size limit and the
// allowed content types while reading.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (*multipartForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxFileSize+maxFieldBytes*4)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("expecting multipart form")
	}
	form := &multipartForm{values: map[string]string{}, files: map[string]*uploadedFile{}}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err, s.cfg.MaxFileSize)
		}
		name := part.FormName()
		if part.FileName() == "" {
			raw, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			part.Close()
			if err != nil {
				return nil, readError(err, s.cfg.MaxFileSize)
			}
			if len(raw) > maxFieldBytes {
				return nil, apperr.Validation("field %s is too long", name)
			}
			form.values[name] = string(raw)
			continue
		}
		file, err := s.readFile(part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return nil, err
		}
		form.files[name] = file
	}
	return form, nil
}

func (s *Server) readFile(fileName, declared string, body io.Reader) (*uploadedFile, error) {
	var data bytes.Buffer
	var sniff []byte
	buf := make([]byte, 32*1024)
	var written int64
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			written += int64(n)
			if written > s.cfg.MaxFileSize {
				return nil, apperr.Validation("file exceeds limit (%d bytes)", s.cfg.MaxFileSize)
			}
			if len(sniff) < 512 {
				chunk := n
				if remain := 512 - len(sniff); chunk > remain {
					chunk = remain
				}
				sniff = append(sniff, buf[:chunk]...)
			}
			data.Write(buf[:n])
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, readError(readErr, s.cfg.MaxFileSize)
		}
	}
	if written == 0 {
		return nil, apperr.Validation("empty file")
	}
	contentType := declared
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(sniff)
	}
	if !s.allowedType(contentType) {
		return nil, apperr.Validation("unsupported content type %s", contentType)
	}
	return &uploadedFile{fileName: fileName, contentType: contentType, data: data.Bytes()}, nil
}

func (s *Server) allowedType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, allowed := range s.cfg.AllowedTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

func readError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.Validation("file exceeds limit (%d bytes)", limit)
	}
	return apperr.Validation("read multipart body: %v", err)
}

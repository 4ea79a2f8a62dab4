// Package attachment decodes chat attachments and recognizes the document
// formats the OCR collaborator accepts.
package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain"
)

// Limits on what a single turn may attach.
const (
	MaxAttachments   = 5
	MaxRawBytes      = 50 << 20
	MaxBase64Chars   = 66_666_668
	defaultFilename  = "attachment"
	maxFilenameRunes = 120
)

// MIME types recognized from magic bytes.
const (
	MIMEPDF  = "application/pdf"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"
	MIMEWEBP = "image/webp"
)

// Input is one attachment as submitted with a chat turn. Exactly one of Data
// (base64, optionally a data URL) or URL is expected.
type Input struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      string `json:"data"`
	URL       string `json:"url"`
}

// Decoded is an attachment ready for OCR. Either Data or URL is set.
type Decoded struct {
	Name string
	MIME string
	Data []byte
	URL  string
}

// IsImage reports whether the attachment is one of the image formats.
func (d Decoded) IsImage() bool {
	return strings.HasPrefix(d.MIME, "image/")
}

// DataURL renders inline data as a base64 data URL.
func (d Decoded) DataURL() string {
	return "data:" + d.MIME + ";base64," + base64.StdEncoding.EncodeToString(d.Data)
}

var (
	sigPDF  = []byte("%PDF-")
	sigPNG  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	sigJPEG = []byte{0xff, 0xd8, 0xff}
	sigRIFF = []byte("RIFF")
	sigWEBP = []byte("WEBP")
)

// DetectMimeFromBinary returns the MIME type of data from its magic bytes, or
// "" when it is none of PDF, PNG, JPEG or WEBP.
func DetectMimeFromBinary(data []byte) string {
	switch {
	case bytes.HasPrefix(data, sigPDF):
		return MIMEPDF
	case bytes.HasPrefix(data, sigPNG):
		return MIMEPNG
	case bytes.HasPrefix(data, sigJPEG):
		return MIMEJPEG
	case len(data) >= 12 && bytes.Equal(data[:4], sigRIFF) && bytes.Equal(data[8:12], sigWEBP):
		return MIMEWEBP
	default:
		return ""
	}
}

// Decode validates and decodes at most MaxAttachments inputs. Oversized or
// undecodable payloads are a validation error. Inputs without a recognized
// signature, and URLs that are not https, are dropped silently, so the
// result may be empty.
func Decode(in []Input) ([]Decoded, error) {
	if len(in) > MaxAttachments {
		in = in[:MaxAttachments]
	}
	out := make([]Decoded, 0, len(in))
	for i, a := range in {
		name := cleanName(a.Name, i)
		if strings.TrimSpace(a.Data) == "" {
			if u, ok := httpsURL(a.URL); ok {
				out = append(out, Decoded{Name: name, MIME: urlMIME(a.MediaType), URL: u})
			}
			continue
		}

		payload := stripDataURL(a.Data)
		if len(payload) > MaxBase64Chars {
			return nil, fmt.Errorf("%w: attachment %q exceeds the 50MB limit", domain.ErrValidation, name)
		}
		raw, err := decodeBase64(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %q is not valid base64", domain.ErrValidation, name)
		}
		if len(raw) > MaxRawBytes {
			return nil, fmt.Errorf("%w: attachment %q exceeds the 50MB limit", domain.ErrValidation, name)
		}
		mime := DetectMimeFromBinary(raw)
		if mime == "" {
			continue
		}
		out = append(out, Decoded{Name: name, MIME: mime, Data: raw})
	}
	return out, nil
}

// Count returns the number of attachments a turn will consider.
func Count(in []Input) int {
	return min(len(in), MaxAttachments)
}

func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if _, rest, ok := strings.Cut(s, ","); ok {
		return rest
	}
	return s
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

func httpsURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

func urlMIME(mediaType string) string {
	switch mt := strings.ToLower(strings.TrimSpace(mediaType)); mt {
	case MIMEPNG, MIMEJPEG, MIMEWEBP:
		return mt
	case "image/jpg":
		return MIMEJPEG
	default:
		return MIMEPDF
	}
}

func cleanName(raw string, index int) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return fmt.Sprintf("%s-%d", defaultFilename, index+1)
	}
	if r := []rune(name); len(r) > maxFilenameRunes {
		name = string(r[:maxFilenameRunes])
	}
	return name
}

package utils

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

var headerDecoder = new(mime.WordDecoder)

// DecodeHeader decodes RFC 2047 encoded words, returning the input unchanged on failure
func DecodeHeader(value string) string {
	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// ExtractTextFromMessage extracts the text content from an email message.
// For multipart messages it collects text/plain parts, falling back to
// text/html when no plain part exists.
func ExtractTextFromMessage(msg *mail.Message) (string, error) {
	return extractPart(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
}

func extractPart(contentType, transferEncoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		bodyBytes, err := io.ReadAll(decodeTransfer(transferEncoding, body))
		if err != nil {
			return "", err
		}
		return string(bodyBytes), nil
	}

	boundary, ok := params["boundary"]
	if !ok {
		bodyBytes, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		return string(bodyBytes), nil
	}

	var plain, html bytes.Buffer
	mr := multipart.NewReader(body, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever was collected before the malformed part
			break
		}

		partType := strings.ToLower(part.Header.Get("Content-Type"))
		encoding := part.Header.Get("Content-Transfer-Encoding")
		switch {
		case strings.HasPrefix(partType, "multipart/"):
			nested, err := extractPart(part.Header.Get("Content-Type"), encoding, part)
			if err == nil && nested != "" {
				plain.WriteString(nested)
				plain.WriteString("\n")
			}
		case partType == "" || strings.HasPrefix(partType, "text/plain"):
			partBytes, err := io.ReadAll(decodeTransfer(encoding, part))
			if err != nil {
				continue
			}
			plain.Write(partBytes)
			plain.WriteString("\n")
		case strings.HasPrefix(partType, "text/html"):
			partBytes, err := io.ReadAll(decodeTransfer(encoding, part))
			if err != nil {
				continue
			}
			html.Write(partBytes)
			html.WriteString("\n")
		}
		// Attachments and other parts are skipped
	}

	if plain.Len() > 0 {
		return plain.String(), nil
	}
	if html.Len() > 0 {
		return html.String(), nil
	}
	return "", nil
}

func decodeTransfer(encoding string, r io.Reader) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, newlineStripper{r})
	default:
		return r
	}
}

// newlineStripper drops CR and LF so wrapped base64 decodes cleanly
type newlineStripper struct {
	r io.Reader
}

func (n newlineStripper) Read(p []byte) (int, error) {
	for {
		count, err := n.r.Read(p)
		kept := 0
		for _, b := range p[:count] {
			if b != '\r' && b != '\n' {
				p[kept] = b
				kept++
			}
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}

package emails

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mailtriage/internal/models"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// AllowedExtensions lists the upload file types the parser accepts
var AllowedExtensions = []string{".eml", ".arf"}

// Message is the structured form of an email handed to the analysis model
type Message struct {
	Header      Header       `json:"header"`
	Body        []BodyPart   `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Header holds the decoded headers the rest of the system relies on, plus every raw header
type Header struct {
	From       []string            `json:"from"`
	To         []string            `json:"to"`
	Cc         []string            `json:"cc,omitempty"`
	Subject    string              `json:"subject"`
	Date       *time.Time          `json:"date,omitempty"`
	MessageID  string              `json:"message_id,omitempty"`
	ReceivedIP []string            `json:"received_ip,omitempty"`
	Received   []string            `json:"received,omitempty"`
	Header     map[string][]string `json:"header"`
}

// BodyPart is one decoded textual body part
type BodyPart struct {
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
	Hash        string `json:"hash"`
}

// Attachment describes a non-text part without carrying its payload
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Hash        string `json:"hash"`
}

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\b`)

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// HasAllowedExtension reports whether filename ends in one of AllowedExtensions
func HasAllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// SanitizeRaw turns an uploaded payload into storable text: invalid UTF-8 sequences are
// dropped and NUL bytes removed.
func SanitizeRaw(content []byte) string {
	s := strings.ToValidUTF8(string(content), "")
	return strings.ReplaceAll(s, "\x00", "")
}

// Parse parses a single RFC 5322 message
func Parse(content []byte) (*Message, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to read email message: %w", err)
	}

	header := msg.Header
	out := &Message{
		Header: Header{
			From:      addressList(header, "From"),
			To:        addressList(header, "To"),
			Cc:        addressList(header, "Cc"),
			Subject:   decodeHeader(header.Get("Subject")),
			MessageID: strings.TrimSpace(header.Get("Message-ID")),
			Received:  header["Received"],
			Header:    map[string][]string(header),
		},
	}

	if dateStr := header.Get("Date"); dateStr != "" {
		if date, err := mail.ParseDate(dateStr); err == nil {
			out.Header.Date = &date
		}
	}

	out.Header.ReceivedIP = receivedIPs(header["Received"])

	if err := extractBody(out, msg); err != nil {
		return nil, fmt.Errorf("failed to extract body: %w", err)
	}

	return out, nil
}

// ToParsedEmail maps a parsed message onto the stored record. A missing or unparseable
// date falls back to now.
func ToParsedEmail(m *Message, rawEmailID int, evaluation string, now time.Time) *models.ParsedEmail {
	p := &models.ParsedEmail{
		FromAddress: strings.Join(m.Header.From, ", "),
		Subject:     m.Header.Subject,
		Date:        models.NewTimestamp(now.UTC()),
		RawEmailID:  &rawEmailID,
	}
	if len(m.Header.To) > 0 {
		p.ToAddress = m.Header.To[0]
	}
	if m.Header.Date != nil {
		p.Date = models.NewTimestamp(m.Header.Date.UTC())
	}
	if len(m.Header.ReceivedIP) > 0 {
		ip := m.Header.ReceivedIP[0]
		p.SenderIP = &ip
	}
	if evaluation != "" {
		p.OllamaEvaluation = &evaluation
	}
	return p
}

// addressList returns the addresses of a header, falling back to the decoded raw value
// when the list does not parse
func addressList(h mail.Header, key string) []string {
	raw := h.Get(key)
	if raw == "" {
		return nil
	}
	parser := mail.AddressParser{WordDecoder: wordDecoder}
	addrs, err := parser.ParseList(raw)
	if err != nil {
		return []string{decodeHeader(raw)}
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, strings.ToLower(a.Address))
	}
	return out
}

// receivedIPs collects the public IPv4 addresses mentioned in Received headers, in header
// order, without duplicates
func receivedIPs(received []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, line := range received {
		for _, m := range ipv4Pattern.FindAllStringSubmatch(line, -1) {
			ip := net.ParseIP(m[1])
			if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
				continue
			}
			if !seen[m[1]] {
				seen[m[1]] = true
				out = append(out, m[1])
			}
		}
	}
	return out
}

// extractBody walks the message body collecting text parts and attachment metadata
func extractBody(out *Message, msg *mail.Message) error {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Fallback: read as plain text
		body, err := io.ReadAll(msg.Body)
		if err != nil {
			return err
		}
		out.Body = append(out.Body, newBodyPart("text/plain", string(body)))
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return extractMultipart(out, msg.Body, params["boundary"])
	}

	content, err := decodePart(msg.Body, msg.Header.Get("Content-Transfer-Encoding"))
	if err != nil {
		return err
	}
	text, err := toUTF8(content, params["charset"])
	if err != nil {
		text = content
	}
	out.Body = append(out.Body, newBodyPart(mediaType, string(text)))
	return nil
}

// extractMultipart handles nested multipart bodies
func extractMultipart(out *Message, body io.Reader, boundary string) error {
	if boundary == "" {
		return fmt.Errorf("multipart body without boundary")
	}
	mr := multipart.NewReader(body, boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		partType := part.Header.Get("Content-Type")
		if partType == "" {
			partType = "text/plain"
		}
		mediaType, params, _ := mime.ParseMediaType(partType)

		if strings.HasPrefix(mediaType, "multipart/") {
			if err := extractMultipart(out, part, params["boundary"]); err != nil {
				return err
			}
			continue
		}

		content, err := decodePart(part, part.Header.Get("Content-Transfer-Encoding"))
		if err != nil {
			continue
		}

		filename := decodeHeader(part.FileName())
		if filename != "" || !strings.HasPrefix(mediaType, "text/") {
			out.Attachments = append(out.Attachments, Attachment{
				Filename:    filename,
				ContentType: mediaType,
				Size:        len(content),
				Hash:        hashOf(content),
			})
			continue
		}

		text, err := toUTF8(content, params["charset"])
		if err != nil {
			text = content
		}
		out.Body = append(out.Body, newBodyPart(mediaType, string(text)))
	}
}

// decodePart undoes the transfer encoding
func decodePart(body io.Reader, transferEncoding string) ([]byte, error) {
	reader := body

	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "quoted-printable":
		reader = quotedprintable.NewReader(body)
	case "base64":
		reader = base64.NewDecoder(base64.StdEncoding, body)
	}

	return io.ReadAll(reader)
}

// toUTF8 converts content from charset using the IANA registry
func toUTF8(content []byte, charset string) ([]byte, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return content, nil
	}
	r, err := charsetReader(charset, bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// charsetReader resolves MIME charset names for header and body decoding
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.MIME.Encoding(strings.ToLower(charset))
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", charset)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// decodeHeader decodes MIME encoded headers
func decodeHeader(header string) string {
	decoded, err := wordDecoder.DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

func newBodyPart(contentType, content string) BodyPart {
	return BodyPart{
		ContentType: contentType,
		Content:     content,
		Hash:        hashOf([]byte(content)),
	}
}

func hashOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

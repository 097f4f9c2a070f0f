package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const (
	PHANT_PRIVATE_KEY_HEADER = "Phant-Private-Key"
	PHANT_CONNECT_ACCEPT     = "application/ld+json, application/json;q=0.9, text/html;q=0.8"
)

// StreamHandle identifies one Phant stream and carries its write credential.
type StreamHandle struct {
	IRI        string
	Title      string
	PublicKey  string
	InputURL   string
	Fields     []string
	PrivateKey string
}

// LogSink opens a stream and appends records to it.
type LogSink interface {
	Connect(ctx context.Context, iri string) (*StreamHandle, error)
	Add(ctx context.Context, stream *StreamHandle, record Record) error
}

type PhantClient struct {
	http *http.Client
}

func NewPhantClient(httpClient *http.Client) *PhantClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PhantClient{http: httpClient}
}

type streamDescriptor struct {
	Title     string   `json:"title"`
	PublicKey string   `json:"publicKey"`
	Fields    []string `json:"fields"`
	Input     string   `json:"input"`
}

type phantResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Connect fetches the stream IRI and works out where records are posted.
func (p *PhantClient) Connect(ctx context.Context, iri string) (*StreamHandle, error) {
	base, err := url.Parse(iri)
	if err != nil {
		return nil, fmt.Errorf("parse stream iri: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("stream iri %q is not absolute", iri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", PHANT_CONNECT_ACCEPT)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stream description: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("stream %s: %s", iri, resp.Status)
	}

	desc, err := parse_stream_description(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, err
	}

	handle := &StreamHandle{
		IRI:       iri,
		Title:     desc.Title,
		PublicKey: desc.PublicKey,
		Fields:    desc.Fields,
	}
	if handle.PublicKey == "" {
		handle.PublicKey = path.Base(strings.TrimRight(base.Path, "/"))
		if handle.PublicKey == "." || handle.PublicKey == "/" || handle.PublicKey == "" {
			return nil, fmt.Errorf("stream %s: no public key in description or path", iri)
		}
	}

	if desc.Input != "" {
		in, err := url.Parse(desc.Input)
		if err != nil {
			return nil, fmt.Errorf("stream input url: %w", err)
		}
		handle.InputURL = base.ResolveReference(in).String()
	} else {
		handle.InputURL = (&url.URL{
			Scheme: base.Scheme,
			Host:   base.Host,
			Path:   "/input/" + handle.PublicKey,
		}).String()
	}
	return handle, nil
}

func parse_stream_description(contentType string, data []byte) (streamDescriptor, error) {
	var desc streamDescriptor

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		// Unlabelled bodies fall back to deriving everything from the IRI.
		return desc, nil
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if err := json.Unmarshal(data, &desc); err != nil {
			return desc, fmt.Errorf("decode stream description: %w", err)
		}
	case mediaType == "text/html":
		ld, ok := find_json_ld(data)
		if !ok {
			return desc, nil
		}
		if err := json.Unmarshal(ld, &desc); err != nil {
			return desc, fmt.Errorf("decode stream json-ld: %w", err)
		}
	}
	return desc, nil
}

// Helper function to pull an attribute value from a Token
func get_attr(t html.Token, key string) (ok bool, val string) {
	for _, a := range t.Attr {
		if a.Key == key {
			val = a.Val
			ok = true
		}
	}
	return
}

// find_json_ld returns the body of the first <script type="application/ld+json">.
func find_json_ld(page []byte) ([]byte, bool) {
	parser := html.NewTokenizer(bytes.NewReader(page))
	inLD := false

	for {
		token := parser.Next()

		switch token {
		case html.ErrorToken:
			// End of the document
			return nil, false
		case html.StartTagToken:
			tag := parser.Token()
			inLD = false
			if tag.Data != "script" {
				continue
			}
			ok, typ := get_attr(tag, "type")
			inLD = ok && strings.EqualFold(strings.TrimSpace(typ), "application/ld+json")
		case html.TextToken:
			if inLD {
				return bytes.TrimSpace(parser.Text()), true
			}
		default:
			inLD = false
		}
	}
}

// Add posts one row to the stream. Phant expects every declared field.
func (p *PhantClient) Add(ctx context.Context, stream *StreamHandle, record Record) error {
	if stream == nil {
		return fmt.Errorf("no stream handle")
	}
	if err := check_fields(stream.Fields, record.Values); err != nil {
		return err
	}

	form := url.Values{}
	for name, value := range record.Values {
		form.Set(name, strconv.FormatFloat(value, 'f', -1, 64))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stream.InputURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(PHANT_PRIVATE_KEY_HEADER, stream.PrivateKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return parse_phant_response(resp.StatusCode, resp.Status, data)
}

func parse_phant_response(code int, status string, data []byte) error {
	var pr phantResponse
	if err := json.Unmarshal(data, &pr); err != nil {
		// Plain text replies look like "1 success" or "0 <reason>".
		text := strings.TrimSpace(string(data))
		if code >= 200 && code <= 299 && !strings.HasPrefix(text, "0") {
			return nil
		}
		if text == "" {
			text = status
		}
		return fmt.Errorf("phant %s: %s", status, text)
	}

	if code < 200 || code > 299 || !pr.Success {
		msg := pr.Message
		if msg == "" {
			msg = "rejected"
		}
		return fmt.Errorf("phant %s: %s", status, msg)
	}
	return nil
}

func check_fields(fields []string, values map[string]float64) error {
	if len(fields) == 0 {
		return nil
	}

	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f] = true
	}

	var unknown, missing []string
	for name := range values {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	for _, f := range fields {
		if _, ok := values[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(unknown) == 0 && len(missing) == 0 {
		return nil
	}

	sort.Strings(unknown)
	sort.Strings(missing)
	return fmt.Errorf("record does not match stream fields (unknown %v, missing %v)", unknown, missing)
}

var _ LogSink = (*PhantClient)(nil)

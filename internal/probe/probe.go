// Package probe issues one diagnostic chat-completion request against an
// OpenAI-compatible inference endpoint and renders the response, either as a
// relayed event stream or as a single parsed JSON document.
package probe

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"

	openai "nimprobe/internal/api/openai/v1"
	"nimprobe/internal/constants/kimi"
	"nimprobe/internal/logger"
)

// StatusError reports a non-2xx response from the endpoint. The response body
// is drained but deliberately not carried: a failed probe must not echo
// whatever the server sent back.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned %s", e.Status)
}

type Options struct {
	Endpoint    string
	Model       string
	ApiKey      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stream      bool
	Thinking    bool
	Timeout     time.Duration

	// HTTPClient overrides the default HTTP/2 client, mainly for tests.
	HTTPClient *http.Client
	// Output receives response content. Defaults to stdout.
	Output io.Writer
	Logger *logger.Logger
}

type Probe struct {
	endpoint    string
	model       string
	apikey      string
	prompt      string
	maxTokens   int
	temperature float64
	topP        float64
	stream      bool
	thinking    bool
	timeout     time.Duration

	client *http.Client
	out    io.Writer
	lgr    *logger.Logger
}

func New(opts Options) *Probe {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = kimi.DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Transport: &http2.Transport{}}
		// In streaming mode the client deadline is left unset so an open
		// stream can outlive the timeout; Run bounds the header phase
		// separately. A slow or silent server can then hold the stream
		// open indefinitely, which matches the tool's contract.
		if !opts.Stream {
			client.Timeout = timeout
		}
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	lgr := opts.Logger
	if lgr == nil {
		lgr = logger.New(logger.INFO, out)
	}
	return &Probe{
		endpoint:    opts.Endpoint,
		model:       opts.Model,
		apikey:      opts.ApiKey,
		prompt:      opts.Prompt,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		topP:        opts.TopP,
		stream:      opts.Stream,
		thinking:    opts.Thinking,
		timeout:     timeout,
		client:      client,
		out:         out,
		lgr:         lgr,
	}
}

// Run sends the chat-completion request and renders the response in the mode
// fixed at construction time. A non-2xx status, transport failure, or
// undecodable body all surface as errors; nothing is retried.
func (p *Probe) Run(ctx context.Context) error {
	payload := p.buildRequest()

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request body")
	}
	p.lgr.Debugf("request body: %s", body)

	// Bound the dial and response-header phase. The timer is stopped once
	// headers arrive so a streaming body read is not cut off mid-stream.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := time.AfterFunc(p.timeout, cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating request")
	}

	req.Header.Set("Authorization", "Bearer "+p.apikey)
	req.Header.Set("Content-Type", "application/json")
	if p.stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
		// Declare the encodings decodeBody can undo; setting the header
		// ourselves disables the transport's transparent gzip handling.
		req.Header.Set("Accept-Encoding", "gzip, br, deflate")
	}

	resp, err := p.client.Do(req)
	timer.Stop()
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if p.stream {
		return p.relayStream(resp.Body)
	}
	return p.printDocument(resp)
}

func (p *Probe) buildRequest() openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.Message{
			{Role: "user", Content: p.prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: &p.temperature,
		TopP:        &p.topP,
		Stream:      p.stream,
	}
	if p.thinking {
		req.ChatTemplateKwargs = map[string]any{"thinking": true}
	}
	return req
}

// relayStream prints every non-empty line of the event stream verbatim, in
// arrival order, until the server closes the connection. There is no per-read
// timeout once the stream is open and no reconnection.
func (p *Probe) relayStream(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintln(p.out, line)
	}
	return errors.Wrap(scanner.Err(), "reading event stream")
}

// printDocument reads the whole body, parses it as one JSON document, and
// prints it re-indented. The document is kept generic so unknown fields
// survive the round trip.
func (p *Probe) printDocument(resp *http.Response) error {
	body, err := decodeBody(resp)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return errors.Wrap(err, "parsing response body")
	}

	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "rendering response")
	}
	fmt.Fprintln(p.out, string(pretty))
	return nil
}

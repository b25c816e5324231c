package verdict

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/model"
)

// OpenAIOptions configures an OpenAI-compatible chat completions endpoint.
type OpenAIOptions struct {
	BaseURL      string
	Model        string
	EndpointPath string // overrides /chat/completions; may be a full URL
	Temperature  *float64
	ExtraHeaders map[string]string
	Timeout      time.Duration
}

func (o *OpenAIOptions) defaults() {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.Model == "" {
		o.Model = "gpt-4.1-mini"
	}
	if o.EndpointPath == "" {
		o.EndpointPath = "/chat/completions"
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
}

// OpenAI asks a chat model for verdicts on every candidate of a file in one
// request.
type OpenAI struct {
	url    string
	apiKey string
	model  string
	temp   *float64
	extraH map[string]string
	do     func(*http.Request) (*http.Response, error)
	log    *zap.Logger
}

func NewOpenAI(opts OpenAIOptions, apiKey string, log *zap.Logger) *OpenAI {
	opts.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	fullURL := opts.EndpointPath
	if !(strings.HasPrefix(fullURL, "http://") || strings.HasPrefix(fullURL, "https://")) {
		fullURL = strings.TrimRight(opts.BaseURL, "/") + "/" + strings.TrimLeft(opts.EndpointPath, "/")
	}
	hc := &http.Client{Timeout: opts.Timeout}
	return &OpenAI{
		url:    fullURL,
		apiKey: apiKey,
		model:  opts.Model,
		temp:   opts.Temperature,
		extraH: opts.ExtraHeaders,
		do:     hc.Do,
		log:    log,
	}
}

func (s *OpenAI) Name() string { return "openai" }

func (s *OpenAI) NeedsCredential() bool { return true }

// Fingerprint names the endpoint, model and temperature verdicts came from.
func (s *OpenAI) Fingerprint() string {
	temp := "default"
	if s.temp != nil {
		temp = strconv.FormatFloat(*s.temp, 'g', -1, 64)
	}
	return strings.Join([]string{s.Name(), s.url, s.model, temp}, "|")
}

const systemPrompt = `You review SQL queries embedded in source code.
For every query in the input, decide whether it is valid and sensible SQL.
Answer with a JSON object {"results": [...]} holding one element per query:
{"id": <input id>, "query": <input query>, "start": <input start>,
 "verdict": "True" | "Error" | "Warning", "reason": <short explanation>,
 "correction": <fixed query text, or null when no fix is needed>}.
Keep placeholders and host-language interpolation exactly as written.
Return only JSON.`

type oaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaResponseFormat struct {
	Type string `json:"type"`
}

type oaReq struct {
	Model          string            `json:"model"`
	Messages       []oaMessage       `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	ResponseFormat *oaResponseFormat `json:"response_format,omitempty"`
}

type oaResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *OpenAI) Analyze(ctx context.Context, filePath string, text []byte, candidates []model.Candidate) ([]model.Verdict, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if s.apiKey == "" {
		return nil, &model.ConfigurationError{Setting: "openai.api_key_env", Err: model.ErrMissingCredential}
	}

	input, err := json.Marshal(NewRequest(filePath, text, candidates, false))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	body, err := json.Marshal(&oaReq{
		Model: s.model,
		Messages: []oaMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(input)},
		},
		Temperature:    s.temp,
		ResponseFormat: &oaResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, &model.ConfigurationError{Setting: "openai.base_url", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range s.extraH {
		if k == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	s.log.Debug("request verdicts", zap.String("url", s.url), zap.String("path", filePath), zap.Int("queries", len(candidates)))
	resp, err := s.do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: "interrupted", Err: ctxErr}
		}
		var (
			detail string
			ne     net.Error
		)
		if errors.As(err, &ne) && ne.Timeout() {
			detail = "request timed out"
		}
		return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: detail, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		detail := fmt.Sprintf("upstream %d: %s", resp.StatusCode, strings.TrimSpace(string(slurp)))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, &model.ConfigurationError{Setting: "openai.api_key_env", Err: errors.New(detail)}
		}
		return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: detail}
	}

	var or oaResp
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, &model.ResponseFormatError{Source: s.Name(), Err: err}
	}
	if or.Error != nil {
		return nil, &model.AnalysisUnavailableError{Source: s.Name(), Detail: or.Error.Message}
	}
	if len(or.Choices) == 0 || or.Choices[0].Message.Content == "" {
		return nil, &model.ResponseFormatError{Source: s.Name(), Err: errors.New("empty completion")}
	}

	items, err := Decode(s.Name(), []byte(or.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	return Align(filePath, candidates, items), nil
}

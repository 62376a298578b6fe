package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"

	"google.golang.org/genai"
)

// Client - google.golang.org/genai 기반 Sender
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option - Client 설정
type Option func(*Client)

// WithHTTPClient - 커스텀 HTTP 클라이언트 사용
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL - Gemini API 엔드포인트 변경
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient - Client 생성
func NewClient(opts ...Option) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send - GenerateContent 1회 호출 (재시도 없음)
// 자격 증명은 요청마다 전달되므로 genai 클라이언트도 요청마다 생성
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	genaiClient, err := genai.NewClient(ctx, c.clientConfig(req.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Genai client: %w", err)
	}

	parts := make([]*genai.Part, 0, len(req.Parts))
	for i, p := range req.Parts {
		if !p.IsImage() {
			parts = append(parts, genai.NewPartFromText(p.Text))
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image part %d: %w", i, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("image part %d has no data", i)
		}
		parts = append(parts, genai.NewPartFromBytes(data, p.MIMEType))
	}

	log.Printf("📤 [Gemini] Sending request (model: %s, parts: %d, aspect-ratio: %s)", req.Model, len(parts), req.AspectRatio)

	result, err := genaiClient.Models.GenerateContent(
		ctx,
		req.Model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: req.AspectRatio,
			},
		},
	)
	if err != nil {
		return nil, err
	}

	return fromGenai(result), nil
}

func (c *Client) clientConfig(apiKey string) *genai.ClientConfig {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
	}
	if c.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	return cc
}

// fromGenai - genai 응답을 base64 파트로 변환 (후보/파트 순서 유지)
func fromGenai(result *genai.GenerateContentResponse) *Response {
	resp := &Response{}
	if result == nil {
		return resp
	}
	for _, candidate := range result.Candidates {
		var out Candidate
		if candidate != nil && candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					out.Parts = append(out.Parts, ImagePart(part.InlineData.MIMEType, base64.StdEncoding.EncodeToString(part.InlineData.Data)))
					continue
				}
				if part.Text != "" && !part.Thought {
					out.Parts = append(out.Parts, TextPart(part.Text))
				}
			}
		}
		resp.Candidates = append(resp.Candidates, out)
	}
	return resp
}

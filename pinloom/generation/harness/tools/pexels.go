package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
)

const PexelsSearchToolName = "search_images"

// Photo is a Pexels photo as returned by the search API.
type Photo struct {
	ID              int64    `json:"id"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	URL             string   `json:"url"`
	Photographer    string   `json:"photographer"`
	PhotographerURL string   `json:"photographer_url"`
	PhotographerID  *int64   `json:"photographer_id"`
	AvgColor        *string  `json:"avg_color"`
	Src             PhotoSrc `json:"src"`
	Alt             *string  `json:"alt"`
}

// PhotoSrc lists the hosted renditions of a photo.
type PhotoSrc struct {
	Original  string `json:"original"`
	Large2x   string `json:"large2x"`
	Large     string `json:"large"`
	Medium    string `json:"medium"`
	Small     string `json:"small"`
	Portrait  string `json:"portrait"`
	Landscape string `json:"landscape"`
	Tiny      string `json:"tiny"`
}

// PexelsResponse is the search endpoint payload and the full view of the tool.
type PexelsResponse struct {
	TotalResults int     `json:"total_results"`
	Page         int     `json:"page"`
	PerPage      int     `json:"per_page"`
	Photos       []Photo `json:"photos"`
	NextPage     *string `json:"next_page,omitempty"`
}

// SearchArgs are the model-supplied arguments of the search tool.
type SearchArgs struct {
	Query string `json:"query"`
}

// PexelsConfig configures the search tool.
type PexelsConfig struct {
	BaseURL    string
	APIKey     string
	PerPage    int
	HTTPClient *http.Client
}

// PexelsSearchTool searches stock photography on Pexels.
type PexelsSearchTool struct {
	client  *http.Client
	baseURL string
	apiKey  string
	perPage int
}

// NewPexelsSearchTool creates the search tool.
func NewPexelsSearchTool(cfg PexelsConfig) *PexelsSearchTool {
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 80 {
		perPage = 15
	}
	return &PexelsSearchTool{
		client:  defaultHTTPClient(cfg.HTTPClient),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		perPage: perPage,
	}
}

func (t *PexelsSearchTool) Name() string { return PexelsSearchToolName }

func (t *PexelsSearchTool) Description() string {
	return "Search stock photos on Pexels. The query should be English keywords and adjectives describing the wanted photos."
}

func (t *PexelsSearchTool) Kind() ports.ToolKind { return ports.KindImageSearch }

// Invoke runs one search and returns the provider-native response.
func (t *PexelsSearchTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var params SearchArgs
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	params.Query = strings.TrimSpace(params.Query)
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	q := url.Values{}
	q.Set("query", params.Query)
	q.Set("per_page", strconv.Itoa(t.perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Authorization", t.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pexels search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(PexelsSearchToolName, resp)
	}

	var out PexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode pexels response: %w", err)
	}

	return &out, nil
}

var _ ports.Tool = (*PexelsSearchTool)(nil)

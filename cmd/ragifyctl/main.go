// Command ragifyctl is a CLI for manual operations against a running
// ragifyd HTTP server: querying context, checking health, and managing
// registered sources.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ragifyctl",
	Short:   "CLI for ragifyd HTTP server operations",
	Long:    "ragifyctl is a command-line interface for querying context, checking health, and managing sources on a running ragifyd server.",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "ragifyd server URL")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(sourcesCmd)
}

var (
	queryMaxChunks    int
	queryMaxTokens    int
	queryMinRelevance float64
	queryPrivacyLevel string
	queryUserID       string
)

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Request context for a query",
	Long: `Send a query to the ragifyd context API and print the ranked chunks.

Examples:
  ragifyctl query "how does the fusion engine resolve conflicts"
  ragifyctl query --max-chunks 5 --privacy-level private "internal runbook"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxChunks, "max-chunks", 10, "maximum chunks to return")
	queryCmd.Flags().IntVar(&queryMaxTokens, "max-tokens", 2000, "maximum total tokens to return")
	queryCmd.Flags().Float64Var(&queryMinRelevance, "min-relevance", 0, "minimum relevance score (0 uses the server default)")
	queryCmd.Flags().StringVar(&queryPrivacyLevel, "privacy-level", "public", "requested privacy level (public, private, enterprise, restricted)")
	queryCmd.Flags().StringVar(&queryUserID, "user", "", "user ID to attach to the request")
}

// contextRequestBody matches httpapi.ContextRequestBody.
type contextRequestBody struct {
	Query        string  `json:"query"`
	UserID       string  `json:"user_id,omitempty"`
	MaxTokens    int     `json:"max_tokens"`
	MaxChunks    int     `json:"max_chunks"`
	MinRelevance float64 `json:"min_relevance"`
	PrivacyLevel string  `json:"privacy_level"`
}

// chunkView is the subset of model.Chunk this CLI prints.
type chunkView struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	SourceRef struct {
		Name string `json:"name"`
	} `json:"source_ref"`
	RelevanceScore *struct {
		Score float64 `json:"score"`
	} `json:"relevance_score"`
}

type contextResponseView struct {
	ID     string      `json:"id"`
	Query  string      `json:"query"`
	Chunks []chunkView `json:"chunks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	reqBody := contextRequestBody{
		Query:        args[0],
		UserID:       queryUserID,
		MaxTokens:    queryMaxTokens,
		MaxChunks:    queryMaxChunks,
		MinRelevance: queryMinRelevance,
		PrivacyLevel: queryPrivacyLevel,
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := serverURL + "/v1/context"
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var ctxResp contextResponseView
	if err := json.Unmarshal(body, &ctxResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("context %s for %q (%d chunks)\n\n", ctxResp.ID, ctxResp.Query, len(ctxResp.Chunks))
	for i, c := range ctxResp.Chunks {
		score := 0.0
		if c.RelevanceScore != nil {
			score = c.RelevanceScore.Score
		}
		fmt.Printf("%d. [%s] score=%.3f source=%s\n   %s\n\n", i+1, c.ID, score, c.SourceRef.Name, truncate(c.Content, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ragifyd server health",
	RunE:  runHealth,
}

type healthResponse struct {
	Status string `json:"status"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := serverURL + "/healthz"
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	fmt.Printf("status: %s\n", health.Status)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server reported unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registered sources",
	RunE:  runListSources,
}

type sourcesResponse struct {
	Sources []string `json:"sources"`
}

func runListSources(cmd *cobra.Command, args []string) error {
	url := serverURL + "/v1/sources"
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var sources sourcesResponse
	if err := json.NewDecoder(resp.Body).Decode(&sources); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	for _, name := range sources.Sources {
		fmt.Println(name)
	}
	return nil
}

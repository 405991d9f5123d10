package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/synthesis"
)

var askAPIKey string

func init() {
	askCmd.Flags().StringVar(&askAPIKey, "api-key", "", "API key for the tenant (default: $RAGD_API_KEY)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(healthCmd)
}

// askCmd sends a question to the server
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against a running ragd server",
	Long: `Send a question to POST /chat and print the answer with its sources.

The API key selects the tenant whose documents are searched.

Examples:
  ragctl ask "Is water damage covered?" --api-key $CLIENT_A_KEY
  RAGD_API_KEY=... ragctl ask --server http://localhost:8080 "What is the deductible?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check ragd server health",
	Long: `Check the health status of the ragd HTTP server.

Examples:
  # Check health
  ragctl health

  # Check health on a different server
  ragctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// ChatRequest matches internal/http ChatRequest
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse matches internal/http ChatResponse
type ChatResponse struct {
	Answer *synthesis.Answer `json:"answer"`
}

// HealthResponse matches internal/http HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

// runAsk handles the ask command
func runAsk(cmd *cobra.Command, args []string) error {
	apiKey := askAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("RAGD_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("an API key is required (--api-key or RAGD_API_KEY)")
	}

	client := &http.Client{
		Timeout: 120 * time.Second,
	}
	answer, err := askServer(cmd.Context(), client, serverURL, apiKey, args[0])
	if err != nil {
		return err
	}

	printAnswer(cmd.OutOrStdout(), answer)
	return nil
}

// askServer posts question to the server's /chat endpoint.
func askServer(ctx context.Context, client *http.Client, baseURL, apiKey, question string) (*synthesis.Answer, error) {
	reqJSON, err := json.Marshal(ChatRequest{Message: question})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat", baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-KEY", apiKey)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if chatResp.Answer == nil {
		return nil, fmt.Errorf("response has no answer")
	}
	return chatResp.Answer, nil
}

func printAnswer(w io.Writer, answer *synthesis.Answer) {
	fmt.Fprintln(w, answer.Answer)
	if len(answer.Sources) == 0 {
		return
	}
	st := newStyles(w)
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.section.Render("Sources:"))
	for i, src := range answer.Sources {
		name := src.Metadata["source"]
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(w, "  %s\n", st.label.Render(fmt.Sprintf("[%d] %s (similarity %.4f)", i+1, name, src.Similarity)))
		fmt.Fprintf(w, "      %s\n", src.Content)
	}
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	status, err := checkHealth(cmd.Context(), client, serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", status)
	fmt.Fprintf(cmd.OutOrStdout(), "Server URL: %s\n", serverURL)
	return nil
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	url := fmt.Sprintf("%s/health", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return healthResp.Status, nil
}

func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

package provider_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"toolchat/model"
	"toolchat/provider"
	"toolchat/provider/testutil"
)

// fakeOllama serves /api/chat and /api/tags. It answers with one tool call
// when tools are offered and plain text otherwise.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3.1:latest","size":4000}]}`)
		case "/api/chat":
			var body struct {
				Tools []json.RawMessage `json:"tools"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/x-ndjson")
			if len(body.Tools) > 0 {
				fmt.Fprintln(w, `{"message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"weather.get_weather","arguments":{"location":"Paris"}}}]},"done":true}`)
				return
			}
			fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Hello there"},"done":true,"prompt_eval_count":3,"eval_count":2}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fakeOpenAI streams chat completions. With tools it returns one call to
// the encoded weather tool; without tools it returns plain text.
func fakeOpenAI(t *testing.T, bodies chan<- map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":1,"owned_by":"openai"}]}`)
			return
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if bodies != nil {
			bodies <- body
		}

		w.Header().Set("Content-Type", "text/event-stream")
		chunk := func(s string) {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o-mini\",\"choices\":[%s]}\n\n", s)
		}
		if _, ok := body["tools"]; ok {
			chunk(`{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"weather__get_weather","arguments":""}}]},"finish_reason":null}`)
			chunk(`{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"location\":\"Paris\"}"}}]},"finish_reason":null}`)
			chunk(`{"index":0,"delta":{},"finish_reason":"tool_calls"}`)
		} else {
			chunk(`{"index":0,"delta":{"role":"assistant","content":"Hello "},"finish_reason":null}`)
			chunk(`{"index":0,"delta":{"content":"there"},"finish_reason":null}`)
			chunk(`{"index":0,"delta":{},"finish_reason":"stop"}`)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestProviderContract defines the contract every provider must satisfy.
func TestProviderContract(t *testing.T) {
	ollamaProvider, err := provider.NewOllamaProvider(fakeOllama(t).URL, "llama3.1:latest")
	if err != nil {
		t.Fatal(err)
	}
	openaiProvider, err := provider.NewOpenAIProvider(fakeOpenAI(t, nil).URL, "test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	mock := testutil.NewMockProvider("mock", "test-model")
	mock.SendFunc = func(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error) {
		if req.EnableTools && len(req.Tools) > 0 {
			return &model.ChatResponse{
				Provider:              "mock",
				ToolCalls:             []model.ToolCall{{ID: "call_1", Name: req.Tools[0].Name, Arguments: map[string]any{"location": "Paris"}}},
				RequiresToolExecution: true,
			}, nil
		}
		return &model.ChatResponse{Content: "Hello there", Provider: "mock"}, nil
	}

	tests := []struct {
		name     string
		provider model.Provider
	}{
		{"Mock", mock},
		{"Ollama", ollamaProvider},
		{"OpenAI", openaiProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Run("BasicSend", func(t *testing.T) {
				testProviderBasicSend(t, tt.provider)
			})
			t.Run("SendWithTools", func(t *testing.T) {
				testProviderSendWithTools(t, tt.provider)
			})
			t.Run("ModelManagement", func(t *testing.T) {
				testProviderModelManagement(t, tt.provider)
			})
			t.Run("HealthCheck", func(t *testing.T) {
				testProviderHealthCheck(t, tt.provider)
			})
		})
	}
}

func testProviderBasicSend(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := p.Send(ctx, model.ChatRequest{Messages: testutil.SingleUserMessage("Hello")})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if resp.Content != "Hello there" {
		t.Errorf("Send() content = %q", resp.Content)
	}
	if resp.Provider != p.ID() {
		t.Errorf("Send() provider = %q, want %q", resp.Provider, p.ID())
	}
	if resp.RequiresToolExecution || len(resp.ToolCalls) != 0 {
		t.Error("plain answer should not require tool execution")
	}
}

func testProviderSendWithTools(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := p.Send(ctx, model.ChatRequest{
		Messages:    testutil.SingleUserMessage("What's the weather?"),
		Tools:       testutil.TestMCPTools(),
		EnableTools: true,
		ToolChoice:  model.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if !resp.RequiresToolExecution {
		t.Fatal("expected RequiresToolExecution")
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.Name != "weather.get_weather" {
		t.Errorf("tool name = %q, want dotted name", call.Name)
	}
	if call.ID == "" {
		t.Error("tool call has no id")
	}
	if call.Arguments["location"] != "Paris" {
		t.Errorf("unexpected arguments %+v", call.Arguments)
	}
}

func testProviderModelManagement(t *testing.T, p model.Provider) {
	initialModel := p.GetModel()
	if initialModel == "" {
		t.Error("GetModel() returned empty string")
	}

	newModel := "new-test-model"
	p.SetModel(newModel)

	if got := p.GetModel(); got != newModel {
		t.Errorf("After SetModel(%s), GetModel() = %s, want %s", newModel, got, newModel)
	}
	p.SetModel(initialModel)
}

func testProviderHealthCheck(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestOpenAISendsEncodedToolsAndResults(t *testing.T) {
	bodies := make(chan map[string]any, 2)
	p, err := provider.NewOpenAIProvider(fakeOpenAI(t, bodies).URL, "test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatal(err)
	}

	call := model.ToolCall{ID: "call_abc", Name: "weather.get_weather", Arguments: map[string]any{"location": "Paris"}}
	result, ok := provider.FormatToolResult(p.ID(), call, "sunny")
	if !ok {
		t.Fatal("openai formatter not found")
	}

	_, err = p.Send(context.Background(), model.ChatRequest{
		Messages:    append(testutil.SingleUserMessage("weather?"), result),
		Tools:       testutil.TestMCPTools(),
		EnableTools: true,
		ToolChoice:  model.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	body := <-bodies
	if body["tool_choice"] != "auto" {
		t.Errorf("tool_choice = %v, want auto", body["tool_choice"])
	}

	tools, _ := body["tools"].([]any)
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", body["tools"])
	}
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	if fn["name"] != "weather__get_weather" {
		t.Errorf("tool sent as %v, want encoded name", fn["name"])
	}

	messages, _ := body["messages"].([]any)
	if len(messages) != 3 {
		t.Fatalf("expected user, assistant and tool messages, got %d", len(messages))
	}
	last := messages[2].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_abc" {
		t.Errorf("unexpected tool message %v", last)
	}
}

func TestOllamaDropsToolsForUnsupportedModels(t *testing.T) {
	p, err := provider.NewOllamaProvider(fakeOllama(t).URL, "gemma2:9b")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := p.Send(context.Background(), model.ChatRequest{
		Messages:    testutil.SingleUserMessage("weather?"),
		Tools:       testutil.TestMCPTools(),
		EnableTools: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.RequiresToolExecution {
		t.Error("tools should not be offered to a model without tool support")
	}
	if resp.TokenCount != 5 {
		t.Errorf("TokenCount = %d, want 5", resp.TokenCount)
	}
}

// TestMockProviderImplementsInterface ensures mock provider implements the interface
func TestMockProviderImplementsInterface(t *testing.T) {
	var _ model.Provider = (*testutil.MockProvider)(nil)
}
